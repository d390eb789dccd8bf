package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/ruteri/pdo-contract-client/metrics"
)

// Options controls one update.
type Options struct {
	// Enclave is a URL, "preferred", "random" or a registered name.
	Enclave string
	KeyPath string

	// Commit submits state changes; Wait additionally awaits global confirmation.
	Commit bool
	Wait   bool
	Ledger interfaces.LedgerConfig
}

// Result of a successful update.
type Result struct {
	// Response is the invocation result, never the raw state.
	Response     string
	EnclaveID    interfaces.EnclaveID
	StateChanged bool

	// Committed is set only when a state change was committed. It is the
	// contract copy carrying the new state.
	Committed     *interfaces.Contract
	TransactionID string
}

// Sender runs the full selection, evaluation and commit chain.
type Sender struct {
	selector    *Selector
	coordinator *Coordinator
	driver      *CommitDriver
	metrics     *metrics.Collector
	log         *slog.Logger
}

func NewSender(selector *Selector, coordinator *Coordinator, driver *CommitDriver, log *slog.Logger) *Sender {
	return &Sender{
		selector:    selector,
		coordinator: coordinator,
		driver:      driver,
		log:         log,
	}
}

// SetMetrics records per-stage outcomes and latencies.
func (s *Sender) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// Send applies invocation to c. c is left untouched; a committed state is
// returned in Result.Committed.
func (s *Sender) Send(ctx context.Context, c *interfaces.Contract, invocation *interfaces.InvocationRequest, opts Options) (*Result, error) {
	log := s.log.With("contractID", c.ID, "method", invocation.Method)

	start := time.Now()
	enclave, err := s.selector.Select(ctx, opts.Enclave, c)
	s.metrics.ObserveStage(metrics.StageSelect, start, err)
	if err != nil {
		log.Warn("Enclave selection failed", "err", err, "stage", errorStage(err), "directive", opts.Enclave)
		return nil, err
	}
	log = log.With("enclaveID", enclave.EnclaveID())

	start = time.Now()
	resp, err := s.coordinator.Apply(ctx, c, invocation, enclave, opts.KeyPath)
	s.metrics.ObserveStage(metrics.StageEvaluate, start, err)
	if err != nil {
		log.Warn("Invocation failed", "err", err, "stage", errorStage(err))
		return nil, err
	}

	result := &Result{
		Response:     resp.InvocationResponse,
		EnclaveID:    enclave.EnclaveID(),
		StateChanged: resp.StateChanged,
	}
	if !resp.StateChanged || !opts.Commit {
		log.Debug("Nothing to commit", "stateChanged", resp.StateChanged, "commit", opts.Commit)
		return result, nil
	}

	start = time.Now()
	committed, err := s.driver.Commit(ctx, c, resp, opts.Ledger, opts.Wait)
	s.metrics.ObserveStage(commitStage(err, opts.Wait), start, err)
	if err != nil {
		log.Warn("Commit failed", "err", err, "stage", errorStage(err))
		return nil, err
	}

	result.Committed = committed.Contract
	result.TransactionID = committed.TransactionID
	return result, nil
}

// SendToContract loads the contract stored under handle, sends the
// invocation and saves the committed state back under the same handle. The
// stored contract is only rewritten after every requested stage succeeded.
func (s *Sender) SendToContract(ctx context.Context, store interfaces.ContractStore, handle string, invocation *interfaces.InvocationRequest, opts Options) (*Result, error) {
	c, err := store.Load(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrContractLoad, handle, err)
	}

	result, err := s.Send(ctx, c, invocation, opts)
	if err != nil {
		return nil, err
	}

	if result.Committed != nil {
		if err := store.Save(handle, result.Committed); err != nil {
			return nil, fmt.Errorf("state committed in %s but contract could not be saved: %w", result.TransactionID, err)
		}
	}
	return result, nil
}

func commitStage(err error, wait bool) string {
	switch {
	case errors.Is(err, interfaces.ErrSubmit):
		return metrics.StageSubmit
	case errors.Is(err, interfaces.ErrCommitAck):
		return metrics.StageLocalAck
	case err == nil && !wait:
		return metrics.StageLocalAck
	default:
		return metrics.StageGlobal
	}
}

// errorStage names the stage a protocol error came from, for logs and metrics.
func errorStage(err error) string {
	var rejected *interfaces.RejectedInvocationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, interfaces.ErrContractLoad):
		return "contract_load"
	case errors.Is(err, interfaces.ErrCredential):
		return "credential"
	case errors.Is(err, interfaces.ErrConnection):
		return "connection"
	case errors.Is(err, interfaces.ErrUnauthorizedEnclave):
		return "unauthorized_enclave"
	case errors.Is(err, interfaces.ErrEnclaveNotFound):
		return "enclave_not_found"
	case errors.Is(err, interfaces.ErrEvaluation):
		return "evaluation"
	case errors.Is(err, interfaces.ErrSubmit):
		return "submit"
	case errors.Is(err, interfaces.ErrCommitAck):
		return "commit_ack"
	case errors.Is(err, interfaces.ErrGlobalCommit):
		return "global_commit"
	default:
		return "unknown"
	}
}
