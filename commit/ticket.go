package commit

import (
	"context"
	"sync"
)

// Ticket tracks one queued commit. It resolves exactly once.
type Ticket struct {
	id   string
	once sync.Once
	done chan struct{}
	txID string
	err  error
}

func newTicket(id string) *Ticket {
	return &Ticket{id: id, done: make(chan struct{})}
}

// ID identifies the commit task in logs.
func (t *Ticket) ID() string {
	return t.id
}

// AwaitLocalAck blocks until the commit task finished or ctx is done.
func (t *Ticket) AwaitLocalAck(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		return t.txID, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed once the ticket resolved.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

func (t *Ticket) resolve(txID string, err error) {
	t.once.Do(func() {
		t.txID, t.err = txID, err
		close(t.done)
	})
}
