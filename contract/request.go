package contract

import (
	"bytes"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// CreateUpdateRequest builds and signs a request to evaluate invocation
// against the contract's current state on the given enclave.
func CreateUpdateRequest(contract *interfaces.Contract, invocation *interfaces.InvocationRequest, keys *cryptoutils.ClientKeys, enclaveID interfaces.EnclaveID) (*interfaces.UpdateRequest, error) {
	if invocation.Method == "" {
		return nil, fmt.Errorf("invocation has no method")
	}

	invocationHash, err := invocation.Hash()
	if err != nil {
		return nil, err
	}

	req := &interfaces.UpdateRequest{
		ContractID:     contract.ID,
		EnclaveID:      enclaveID,
		InvokerID:      keys.Identity(),
		StateHash:      bytes.Clone(contract.StateHash),
		State:          bytes.Clone(contract.State),
		Invocation:     *invocation,
		InvocationHash: invocationHash,
	}

	req.Signature, err = keys.Sign(req.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to sign update request: %w", err)
	}
	return req, nil
}

// VerifyUpdateRequest checks the invoker signature and the invocation hash.
func VerifyUpdateRequest(req *interfaces.UpdateRequest) error {
	invocationHash, err := req.Invocation.Hash()
	if err != nil {
		return err
	}
	if !bytes.Equal(invocationHash, req.InvocationHash) {
		return fmt.Errorf("invocation hash mismatch")
	}
	if len(req.State) > 0 && !bytes.Equal(cryptoutils.ComputeStateHash(req.State), req.StateHash) {
		return fmt.Errorf("state hash mismatch")
	}

	invoker, err := addressFromIdentity(req.InvokerID)
	if err != nil {
		return err
	}
	return cryptoutils.VerifySignatureFrom(invoker, req.Hash(), req.Signature)
}

func addressFromIdentity(identity string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(identity) {
		return ethcommon.Address{}, fmt.Errorf("invalid invoker identity %q", identity)
	}
	return ethcommon.HexToAddress(identity), nil
}
