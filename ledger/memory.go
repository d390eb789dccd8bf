package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// ErrStaleState is returned when an update does not extend the contract's
// current state.
var ErrStaleState = errors.New("update does not extend the current contract state")

type memoryEntry struct {
	details interfaces.StateDetails
	// hiddenLookups is how many more lookups miss before the state shows.
	hiddenLookups int
}

// MemoryLedger is an in-process ledger. It can delay visibility of committed
// states to exercise polling.
type MemoryLedger struct {
	mu              sync.Mutex
	states          map[string]*memoryEntry
	heads           map[string][]byte
	height          uint64
	visibilityDelay int
	submitErr       error
	submitted       []interfaces.StateUpdate
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		states: make(map[string]*memoryEntry),
		heads:  make(map[string][]byte),
	}
}

// SetVisibilityDelay makes each later committed state miss its first n lookups.
func (l *MemoryLedger) SetVisibilityDelay(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visibilityDelay = n
}

// FailSubmissions makes every later submission fail with err; nil restores.
func (l *MemoryLedger) FailSubmissions(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitErr = err
}

// Submitted returns the accepted updates in order.
func (l *MemoryLedger) Submitted() []interfaces.StateUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]interfaces.StateUpdate(nil), l.submitted...)
}

func (l *MemoryLedger) SubmitStateUpdate(ctx context.Context, update *interfaces.StateUpdate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return "", l.submitErr
	}
	if update.ContractID == "" || len(update.NewStateHash) == 0 {
		return "", fmt.Errorf("incomplete state update")
	}
	if head, ok := l.heads[update.ContractID]; ok && !bytes.Equal(head, update.OldStateHash) {
		return "", ErrStaleState
	}

	l.height++
	txID := memoryTransactionID(update, l.height)

	l.states[stateKey(update.ContractID, update.NewStateHash)] = &memoryEntry{
		details: interfaces.StateDetails{
			PreviousStateHash: bytes.Clone(update.OldStateHash),
			TransactionID:     txID,
			BlockNumber:       l.height,
		},
		hiddenLookups: l.visibilityDelay,
	}
	l.heads[update.ContractID] = bytes.Clone(update.NewStateHash)
	l.submitted = append(l.submitted, *update)

	return txID, nil
}

func (l *MemoryLedger) StateDetails(ctx context.Context, contractID string, stateHash []byte) (*interfaces.StateDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.states[stateKey(contractID, stateHash)]
	if !ok {
		return nil, interfaces.ErrStateNotFound
	}
	if entry.hiddenLookups > 0 {
		entry.hiddenLookups--
		return nil, interfaces.ErrStateNotFound
	}

	details := entry.details
	return &details, nil
}

func stateKey(contractID string, stateHash []byte) string {
	return contractID + "/" + hex.EncodeToString(stateHash)
}

func memoryTransactionID(update *interfaces.StateUpdate, height uint64) string {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	digest := cryptoutils.ComputeStateHash(bytes.Join([][]byte{[]byte(update.ContractID), update.NewStateHash, h[:]}, nil))
	return "0x" + hex.EncodeToString(digest)
}
