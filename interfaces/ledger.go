package interfaces

import (
	"context"
	"errors"
)

// ErrStateNotFound is returned by ledgers that have not (yet) recorded a state.
var ErrStateNotFound = errors.New("state not found on ledger")

// StateUpdate is the ledger transaction payload of a change set.
type StateUpdate struct {
	ContractID       string
	OldStateHash     []byte
	NewStateHash     []byte
	InvocationHash   []byte
	EnclaveSignature []byte
}

// StateDetails is what the ledger records about a committed state.
type StateDetails struct {
	PreviousStateHash []byte
	TransactionID     string
	BlockNumber       uint64
}

// LedgerClient submits state updates and looks up committed states.
type LedgerClient interface {
	// SubmitStateUpdate blocks until the update is included and returns the transaction id.
	SubmitStateUpdate(ctx context.Context, update *StateUpdate) (string, error)

	// StateDetails returns ErrStateNotFound if the state is not recorded.
	StateDetails(ctx context.Context, contractID string, stateHash []byte) (*StateDetails, error)
}
