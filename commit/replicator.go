package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/ruteri/pdo-contract-client/metrics"
	"go.uber.org/atomic"
)

const DefaultWorkers = 4

var (
	// ErrInvalidChangeSet is returned by SubmitAsync for change sets that
	// cannot be committed.
	ErrInvalidChangeSet = errors.New("invalid change set")

	// ErrClosed is returned by SubmitAsync after Close.
	ErrClosed = errors.New("replicator closed")

	// ErrLedgerMismatch is returned by SubmitAsync when the configuration
	// names a ledger other than the one the replicator is bound to.
	ErrLedgerMismatch = errors.New("ledger configuration does not match replicator")
)

// Stats counts commit tasks over the replicator's lifetime.
type Stats struct {
	Submitted uint64
	Committed uint64
	Failed    uint64
}

// Replicator implements interfaces.CommitSubmitter.
type Replicator struct {
	ledger         interfaces.LedgerClient
	storageFactory interfaces.StorageBackendFactory
	pool           *workerpool.WorkerPool
	metrics        *metrics.Collector
	log            *slog.Logger

	bound     bool
	ledgerCfg interfaces.LedgerConfig

	mu        sync.RWMutex
	closed    bool
	submitted atomic.Uint64
	committed atomic.Uint64
	failed    atomic.Uint64
}

// NewReplicator commits to ledger using at most workers concurrent tasks.
// storageFactory may be nil when no change set names storage targets.
func NewReplicator(ledger interfaces.LedgerClient, storageFactory interfaces.StorageBackendFactory, workers int, log *slog.Logger) *Replicator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Replicator{
		ledger:         ledger,
		storageFactory: storageFactory,
		pool:           workerpool.New(workers),
		log:            log,
	}
}

// SetMetrics enables commit task metrics.
func (r *Replicator) SetMetrics(c *metrics.Collector) {
	r.metrics = c
}

// BindLedger records the configuration the ledger client was built from.
// Once bound, SubmitAsync refuses configurations naming another ledger.
// Only storage targets are taken from the per-call configuration.
func (r *Replicator) BindLedger(cfg interfaces.LedgerConfig) {
	r.bound = true
	r.ledgerCfg = cfg
}

func (r *Replicator) checkLedger(cfg interfaces.LedgerConfig) error {
	if !r.bound {
		return nil
	}
	switch {
	case cfg.Type != r.ledgerCfg.Type:
		return fmt.Errorf("%w: type %q, bound to %q", ErrLedgerMismatch, cfg.Type, r.ledgerCfg.Type)
	case cfg.URL != r.ledgerCfg.URL:
		return fmt.Errorf("%w: url %q, bound to %q", ErrLedgerMismatch, cfg.URL, r.ledgerCfg.URL)
	case !strings.EqualFold(cfg.ContractAddress, r.ledgerCfg.ContractAddress):
		return fmt.Errorf("%w: contract %q, bound to %q", ErrLedgerMismatch, cfg.ContractAddress, r.ledgerCfg.ContractAddress)
	case cfg.ChainID != r.ledgerCfg.ChainID:
		return fmt.Errorf("%w: chain %d, bound to %d", ErrLedgerMismatch, cfg.ChainID, r.ledgerCfg.ChainID)
	}
	return nil
}

// SubmitAsync validates the change set and queues it. Errors returned here
// mean nothing was queued. The task runs under ctx, so cancelling ctx
// abandons a commit that has not reached the ledger yet.
func (r *Replicator) SubmitAsync(ctx context.Context, cfg interfaces.LedgerConfig, changes *interfaces.ChangeSet) (interfaces.CommitTicket, error) {
	if err := validateChangeSet(changes); err != nil {
		return nil, err
	}
	if err := r.checkLedger(cfg); err != nil {
		return nil, err
	}

	var backend interfaces.StorageBackend
	if len(cfg.StorageURIs) > 0 {
		if r.storageFactory == nil {
			return nil, fmt.Errorf("storage targets configured without a storage factory")
		}
		var err error
		backend, err = r.storageFactory.CreateMultiBackend(cfg.StorageURIs)
		if err != nil {
			return nil, fmt.Errorf("could not open storage targets: %w", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}

	ticket := newTicket(uuid.NewString())
	log := r.log.With("task", ticket.ID(), "contractID", changes.ContractID)

	r.submitted.Inc()
	r.metrics.CommitQueued()
	r.pool.Submit(func() {
		start := time.Now()
		txID, err := r.commit(ctx, backend, changes, log)
		if err != nil {
			r.failed.Inc()
			log.Error("Commit failed", "err", err, slog.Duration("duration", time.Since(start)))
		} else {
			r.committed.Inc()
			log.Info("Committed contract state", "tx", txID, slog.Duration("duration", time.Since(start)))
		}
		r.metrics.CommitDone(err)
		ticket.resolve(txID, err)
	})

	log.Debug("Commit queued", "waiting", r.pool.WaitingQueueSize())
	return ticket, nil
}

func (r *Replicator) commit(ctx context.Context, backend interfaces.StorageBackend, changes *interfaces.ChangeSet, log *slog.Logger) (string, error) {
	if backend != nil {
		stateID, err := backend.Store(ctx, changes.RawState, interfaces.StateType)
		if err != nil {
			return "", fmt.Errorf("could not replicate state: %w", err)
		}

		encoded, err := json.Marshal(changes)
		if err != nil {
			return "", fmt.Errorf("could not encode change set: %w", err)
		}
		changeSetID, err := backend.Store(ctx, encoded, interfaces.ChangeSetType)
		if err != nil {
			return "", fmt.Errorf("could not replicate change set: %w", err)
		}
		log.Debug("Replicated state", "stateID", stateID.String(), "changeSetID", changeSetID.String(), "backend", backend.Name())
	}

	txID, err := r.ledger.SubmitStateUpdate(ctx, &interfaces.StateUpdate{
		ContractID:       changes.ContractID,
		OldStateHash:     changes.OldStateHash,
		NewStateHash:     changes.NewStateHash,
		InvocationHash:   changes.InvocationHash,
		EnclaveSignature: changes.EnclaveSignature,
	})
	if err != nil {
		return "", fmt.Errorf("could not commit state to ledger: %w", err)
	}
	return txID, nil
}

func validateChangeSet(changes *interfaces.ChangeSet) error {
	switch {
	case changes == nil:
		return fmt.Errorf("%w: nil", ErrInvalidChangeSet)
	case changes.ContractID == "":
		return fmt.Errorf("%w: missing contract id", ErrInvalidChangeSet)
	case len(changes.NewStateHash) == 0:
		return fmt.Errorf("%w: missing new state hash", ErrInvalidChangeSet)
	case !bytes.Equal(cryptoutils.ComputeStateHash(changes.RawState), changes.NewStateHash):
		return fmt.Errorf("%w: raw state does not match new state hash", ErrInvalidChangeSet)
	}
	return nil
}

// Stats returns the task counters.
func (r *Replicator) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Committed: r.committed.Load(),
		Failed:    r.failed.Load(),
	}
}

// Close waits for queued commits to finish. Later submissions fail.
func (r *Replicator) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.pool.StopWait()
}
