package update

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// CommitResult is a committed state transition.
type CommitResult struct {
	// Contract is the working copy carrying the new state, for the caller to persist.
	Contract      *interfaces.Contract
	TransactionID string
}

// CommitDriver moves an evaluated state change through submission, local
// acknowledgment and, optionally, global confirmation.
type CommitDriver struct {
	submitter interfaces.CommitSubmitter
	observer  interfaces.LedgerObserver
	log       *slog.Logger
}

// NewCommitDriver creates a driver. observer may be nil if global
// confirmation is never requested.
func NewCommitDriver(submitter interfaces.CommitSubmitter, observer interfaces.LedgerObserver, log *slog.Logger) *CommitDriver {
	return &CommitDriver{submitter: submitter, observer: observer, log: log}
}

// Commit applies resp to a copy of c and commits it. c itself is never
// modified; on failure the copy is discarded.
func (d *CommitDriver) Commit(ctx context.Context, c *interfaces.Contract, resp *interfaces.UpdateResponse, cfg interfaces.LedgerConfig, wait bool) (*CommitResult, error) {
	if !resp.StateChanged {
		return nil, fmt.Errorf("%w: response carries no state change", interfaces.ErrSubmit)
	}

	working := c.Clone()
	working.SetState(resp.RawState)
	if !bytes.Equal(working.StateHash, resp.NewStateHash) {
		return nil, fmt.Errorf("%w: raw state does not match new state hash", interfaces.ErrSubmit)
	}

	ticket, err := d.submitter.SubmitAsync(ctx, cfg, interfaces.NewChangeSet(resp))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSubmit, err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: no commit ticket", interfaces.ErrSubmit)
	}

	txID, err := ticket.AwaitLocalAck(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrCommitAck, err)
	}
	if txID == "" {
		return nil, fmt.Errorf("%w: no transaction id", interfaces.ErrCommitAck)
	}
	d.log.Info("State committed locally", "contractID", c.ID, "tx", txID)

	if wait {
		if d.observer == nil {
			return nil, fmt.Errorf("%w: no ledger observer configured", interfaces.ErrGlobalCommit)
		}
		encoded := cryptoutils.EncodeStateHash(working.StateHash)
		if err := d.observer.AwaitGlobalState(ctx, c.ID, encoded); err != nil {
			return nil, fmt.Errorf("%w: %w", interfaces.ErrGlobalCommit, err)
		}
		d.log.Info("State confirmed on ledger", "contractID", c.ID, "stateHash", encoded)
	}

	return &CommitResult{Contract: working, TransactionID: txID}, nil
}
