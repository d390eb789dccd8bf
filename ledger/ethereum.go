package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// StateRegistryABI is the interface of the on-chain contract state registry.
const StateRegistryABI = `[
  {"type":"function","name":"updateContractState","stateMutability":"nonpayable",
   "inputs":[
     {"name":"contractId","type":"bytes32"},
     {"name":"oldStateHash","type":"bytes32"},
     {"name":"newStateHash","type":"bytes32"},
     {"name":"invocationHash","type":"bytes32"},
     {"name":"enclaveSignature","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"getStateDetails","stateMutability":"view",
   "inputs":[
     {"name":"contractId","type":"bytes32"},
     {"name":"stateHash","type":"bytes32"}],
   "outputs":[
     {"name":"previousStateHash","type":"bytes32"},
     {"name":"transactionId","type":"bytes32"},
     {"name":"blockNumber","type":"uint256"},
     {"name":"exists","type":"bool"}]}
]`

// boundContract is the subset of bind.BoundContract the ledger uses.
type boundContract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// EthereumLedger records contract states in a state registry contract.
type EthereumLedger struct {
	contract boundContract
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
	log      *slog.Logger
}

// NewEthereumLedger binds the state registry at address. Reads go through
// client; backend is used to wait for transactions to be mined.
func NewEthereumLedger(client bind.ContractBackend, backend bind.DeployBackend, address common.Address, log *slog.Logger) (*EthereumLedger, error) {
	parsed, err := abi.JSON(strings.NewReader(StateRegistryABI))
	if err != nil {
		return nil, err
	}

	return &EthereumLedger{
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		backend:  backend,
		address:  address,
		log:      log,
	}, nil
}

// SetTransactOpts sets the transaction options required for SubmitStateUpdate.
func (l *EthereumLedger) SetTransactOpts(auth *bind.TransactOpts) {
	l.auth = auth
}

// SubmitStateUpdate sends the update and waits for it to be mined.
func (l *EthereumLedger) SubmitStateUpdate(ctx context.Context, update *interfaces.StateUpdate) (string, error) {
	if l.auth == nil {
		return "", ErrNoTransactOpts
	}

	oldHash, err := toBytes32(update.OldStateHash)
	if err != nil {
		return "", fmt.Errorf("old state hash: %w", err)
	}
	newHash, err := toBytes32(update.NewStateHash)
	if err != nil {
		return "", fmt.Errorf("new state hash: %w", err)
	}
	invocationHash, err := toBytes32(update.InvocationHash)
	if err != nil {
		return "", fmt.Errorf("invocation hash: %w", err)
	}

	opts := *l.auth
	opts.Context = ctx

	tx, err := l.contract.Transact(&opts, "updateContractState",
		ContractKey(update.ContractID), oldHash, newHash, invocationHash, update.EnclaveSignature)
	if err != nil {
		return "", fmt.Errorf("could not send state update: %w", err)
	}
	l.log.Debug("State update sent", "contractID", update.ContractID, "tx", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		return "", fmt.Errorf("state update %s not mined: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("state update %s reverted", tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

// StateDetails looks up a committed state. Returns interfaces.ErrStateNotFound
// if the registry has no record of it.
func (l *EthereumLedger) StateDetails(ctx context.Context, contractID string, stateHash []byte) (*interfaces.StateDetails, error) {
	hash, err := toBytes32(stateHash)
	if err != nil {
		return nil, err
	}

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getStateDetails", ContractKey(contractID), hash); err != nil {
		return nil, fmt.Errorf("could not query state details: %w", err)
	}
	return decodeStateDetails(out)
}

func decodeStateDetails(out []interface{}) (*interfaces.StateDetails, error) {
	if len(out) != 4 {
		return nil, fmt.Errorf("unexpected getStateDetails result of %d values", len(out))
	}
	previous, ok1 := out[0].([32]byte)
	txID, ok2 := out[1].([32]byte)
	block, ok3 := out[2].(*big.Int)
	exists, ok4 := out[3].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("unexpected getStateDetails result types")
	}
	if !exists {
		return nil, interfaces.ErrStateNotFound
	}

	return &interfaces.StateDetails{
		PreviousStateHash: previous[:],
		TransactionID:     common.Hash(txID).Hex(),
		BlockNumber:       block.Uint64(),
	}, nil
}

// ContractKey maps a contract id onto the registry's bytes32 key.
func ContractKey(contractID string) [32]byte {
	return crypto.Keccak256Hash([]byte(contractID))
}

// toBytes32 accepts an empty hash as the zero value, for a contract's first state.
func toBytes32(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) == 0 {
		return out, nil
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 byte hash, got %d bytes", len(b))
	}
	copy(out[:], b)
	return out, nil
}
