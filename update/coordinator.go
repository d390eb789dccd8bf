package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/pdo-contract-client/contract"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// Coordinator evaluates an invocation on a selected enclave.
type Coordinator struct {
	keys       interfaces.KeyStore
	searchPath []string
	log        *slog.Logger
}

// NewCoordinator loads invoker keys from keys, looking along searchPath.
func NewCoordinator(keys interfaces.KeyStore, searchPath []string, log *slog.Logger) *Coordinator {
	return &Coordinator{keys: keys, searchPath: searchPath, log: log}
}

// Apply signs and evaluates the invocation against c's current state. A
// response with Status false becomes *interfaces.RejectedInvocationError.
// The contract is not modified.
func (co *Coordinator) Apply(ctx context.Context, c *interfaces.Contract, invocation *interfaces.InvocationRequest, enclave interfaces.EnclaveService, keyPath string) (*interfaces.UpdateResponse, error) {
	keys, err := co.keys.LoadKeys(keyPath, co.searchPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrCredential, keyPath, err)
	}

	req, err := contract.CreateUpdateRequest(c, invocation, keys, enclave.EnclaveID())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrEvaluation, err)
	}

	co.log.Debug("Evaluating invocation",
		"contractID", c.ID,
		"method", invocation.Method,
		"enclaveID", enclave.EnclaveID(),
		"invoker", req.InvokerID)

	resp, err := enclave.Evaluate(ctx, req)
	if err != nil {
		if errors.Is(err, interfaces.ErrEvaluation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", interfaces.ErrEvaluation, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: enclave returned no response", interfaces.ErrEvaluation)
	}

	if !resp.Status {
		co.log.Info("Invocation rejected", "contractID", c.ID, "method", invocation.Method, "explanation", resp.InvocationResponse)
		return nil, &interfaces.RejectedInvocationError{Explanation: resp.InvocationResponse}
	}
	return resp, nil
}
