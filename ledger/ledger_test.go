package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hashOf(s string) []byte {
	return cryptoutils.ComputeStateHash([]byte(s))
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, err := l.StateDetails(ctx, "c1", hashOf("s1"))
	require.ErrorIs(t, err, interfaces.ErrStateNotFound)

	tx1, err := l.SubmitStateUpdate(ctx, &interfaces.StateUpdate{ContractID: "c1", NewStateHash: hashOf("s1")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tx1, "0x"))

	details, err := l.StateDetails(ctx, "c1", hashOf("s1"))
	require.NoError(t, err)
	assert.Equal(t, tx1, details.TransactionID)
	assert.EqualValues(t, 1, details.BlockNumber)

	// Updates must extend the current head.
	_, err = l.SubmitStateUpdate(ctx, &interfaces.StateUpdate{ContractID: "c1", OldStateHash: hashOf("other"), NewStateHash: hashOf("s2")})
	require.ErrorIs(t, err, ErrStaleState)

	tx2, err := l.SubmitStateUpdate(ctx, &interfaces.StateUpdate{ContractID: "c1", OldStateHash: hashOf("s1"), NewStateHash: hashOf("s2")})
	require.NoError(t, err)
	assert.NotEqual(t, tx1, tx2)

	details, err = l.StateDetails(ctx, "c1", hashOf("s2"))
	require.NoError(t, err)
	assert.Equal(t, hashOf("s1"), details.PreviousStateHash)

	// States are per contract.
	_, err = l.StateDetails(ctx, "c2", hashOf("s2"))
	require.ErrorIs(t, err, interfaces.ErrStateNotFound)

	assert.Len(t, l.Submitted(), 2)
}

func TestMemoryLedgerVisibilityDelay(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetVisibilityDelay(2)

	_, err := l.SubmitStateUpdate(ctx, &interfaces.StateUpdate{ContractID: "c1", NewStateHash: hashOf("s1")})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = l.StateDetails(ctx, "c1", hashOf("s1"))
		require.ErrorIs(t, err, interfaces.ErrStateNotFound)
	}
	_, err = l.StateDetails(ctx, "c1", hashOf("s1"))
	require.NoError(t, err)
}

func TestMemoryLedgerFailSubmissions(t *testing.T) {
	l := NewMemoryLedger()
	boom := errors.New("ledger down")
	l.FailSubmissions(boom)

	_, err := l.SubmitStateUpdate(context.Background(), &interfaces.StateUpdate{ContractID: "c1", NewStateHash: hashOf("s1")})
	require.ErrorIs(t, err, boom)

	l.FailSubmissions(nil)
	_, err = l.SubmitStateUpdate(context.Background(), &interfaces.StateUpdate{ContractID: "c1", NewStateHash: hashOf("s1")})
	require.NoError(t, err)
}

func TestPollPolicy(t *testing.T) {
	interval, attempts, err := PollPolicy(interfaces.LedgerConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, interval)
	assert.EqualValues(t, DefaultPollAttempts, attempts)

	interval, attempts, err = PollPolicy(interfaces.LedgerConfig{PollInterval: "10ms", PollAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, interval)
	assert.EqualValues(t, 3, attempts)

	for _, cfg := range []interfaces.LedgerConfig{
		{PollInterval: "soon"},
		{PollInterval: "-1s"},
		{PollAttempts: -1},
	} {
		_, _, err := PollPolicy(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

type scriptedLedger struct {
	interfaces.LedgerClient
	results []error
	calls   int
}

func (s *scriptedLedger) StateDetails(ctx context.Context, contractID string, stateHash []byte) (*interfaces.StateDetails, error) {
	err := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	if err != nil {
		return nil, err
	}
	return &interfaces.StateDetails{TransactionID: "0x01"}, nil
}

func TestObserver(t *testing.T) {
	cfg := interfaces.LedgerConfig{PollInterval: "1ms", PollAttempts: 4}
	encoded := cryptoutils.EncodeStateHash(hashOf("s1"))
	notFound := interfaces.ErrStateNotFound

	t.Run("visible after retries", func(t *testing.T) {
		l := &scriptedLedger{results: []error{notFound, notFound, nil}}
		o, err := NewObserver(l, cfg, testLogger())
		require.NoError(t, err)
		require.NoError(t, o.AwaitGlobalState(context.Background(), "c1", encoded))
		assert.Equal(t, 3, l.calls)
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		l := &scriptedLedger{results: []error{notFound}}
		o, err := NewObserver(l, cfg, testLogger())
		require.NoError(t, err)
		err = o.AwaitGlobalState(context.Background(), "c1", encoded)
		require.ErrorIs(t, err, interfaces.ErrStateNotFound)
		assert.Equal(t, 4, l.calls)
	})

	t.Run("single attempt", func(t *testing.T) {
		l := &scriptedLedger{results: []error{notFound}}
		o, err := NewObserver(l, interfaces.LedgerConfig{PollInterval: "1h", PollAttempts: 1}, testLogger())
		require.NoError(t, err)
		err = o.AwaitGlobalState(context.Background(), "c1", encoded)
		require.ErrorIs(t, err, interfaces.ErrStateNotFound)
		assert.Equal(t, 1, l.calls)
	})

	t.Run("terminal error", func(t *testing.T) {
		boom := errors.New("rpc down")
		l := &scriptedLedger{results: []error{boom}}
		o, err := NewObserver(l, cfg, testLogger())
		require.NoError(t, err)
		err = o.AwaitGlobalState(context.Background(), "c1", encoded)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, l.calls)
	})

	t.Run("deadline", func(t *testing.T) {
		l := &scriptedLedger{results: []error{notFound}}
		o, err := NewObserver(l, interfaces.LedgerConfig{PollInterval: "1h"}, testLogger())
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err = o.AwaitGlobalState(ctx, "c1", encoded)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("bad encoding", func(t *testing.T) {
		o, err := NewObserver(&scriptedLedger{results: []error{nil}}, cfg, testLogger())
		require.NoError(t, err)
		require.Error(t, o.AwaitGlobalState(context.Background(), "c1", "%%%"))
	})

	t.Run("memory ledger", func(t *testing.T) {
		l := NewMemoryLedger()
		l.SetVisibilityDelay(2)
		_, err := l.SubmitStateUpdate(context.Background(), &interfaces.StateUpdate{ContractID: "c1", NewStateHash: hashOf("s1")})
		require.NoError(t, err)

		o, err := NewObserver(l, cfg, testLogger())
		require.NoError(t, err)
		require.NoError(t, o.AwaitGlobalState(context.Background(), "c1", encoded))
	})
}

type fakeContract struct {
	method string
	params []interface{}
	out    []interface{}
	err    error
}

func (f *fakeContract) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	f.method, f.params = method, params
	if f.err != nil {
		return f.err
	}
	*results = f.out
	return nil
}

func (f *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	f.method, f.params = method, params
	if f.err != nil {
		return nil, f.err
	}
	return types.NewTx(&types.LegacyTx{Nonce: 7}), nil
}

type fakeDeployBackend struct {
	status uint64
}

func (f *fakeDeployBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.status, TxHash: txHash}, nil
}

func (f *fakeDeployBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func TestStateRegistryABI(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(StateRegistryABI))
	require.NoError(t, err)

	var h [32]byte
	_, err = parsed.Pack("updateContractState", ContractKey("c1"), h, h, h, []byte{1, 2})
	require.NoError(t, err)
	_, err = parsed.Pack("getStateDetails", ContractKey("c1"), h)
	require.NoError(t, err)

	// Round trip the call result through the ABI as the bound contract would.
	packed, err := parsed.Methods["getStateDetails"].Outputs.Pack([32]byte{1}, [32]byte{2}, big.NewInt(42), true)
	require.NoError(t, err)
	out, err := parsed.Unpack("getStateDetails", packed)
	require.NoError(t, err)

	details, err := decodeStateDetails(out)
	require.NoError(t, err)
	assert.EqualValues(t, 42, details.BlockNumber)
	assert.Equal(t, common.Hash{2}.Hex(), details.TransactionID)
}

func TestEthereumLedgerSubmit(t *testing.T) {
	contract := &fakeContract{}
	l := &EthereumLedger{contract: contract, backend: &fakeDeployBackend{status: types.ReceiptStatusSuccessful}, log: testLogger()}

	update := &interfaces.StateUpdate{
		ContractID:       "c1",
		NewStateHash:     hashOf("s1"),
		InvocationHash:   hashOf("inv"),
		EnclaveSignature: []byte{9},
	}

	_, err := l.SubmitStateUpdate(context.Background(), update)
	require.ErrorIs(t, err, ErrNoTransactOpts)

	l.SetTransactOpts(&bind.TransactOpts{From: common.Address{1}})
	txID, err := l.SubmitStateUpdate(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, types.NewTx(&types.LegacyTx{Nonce: 7}).Hash().Hex(), txID)

	assert.Equal(t, "updateContractState", contract.method)
	require.Len(t, contract.params, 5)
	assert.Equal(t, ContractKey("c1"), contract.params[0])
	assert.Equal(t, [32]byte{}, contract.params[1])

	t.Run("reverted", func(t *testing.T) {
		l.backend = &fakeDeployBackend{status: types.ReceiptStatusFailed}
		_, err := l.SubmitStateUpdate(context.Background(), update)
		require.ErrorContains(t, err, "reverted")
	})

	t.Run("bad hash", func(t *testing.T) {
		_, err := l.SubmitStateUpdate(context.Background(), &interfaces.StateUpdate{ContractID: "c1", NewStateHash: []byte{1}})
		require.Error(t, err)
	})
}

func TestEthereumLedgerStateDetails(t *testing.T) {
	contract := &fakeContract{out: []interface{}{[32]byte{}, [32]byte{}, big.NewInt(0), false}}
	l := &EthereumLedger{contract: contract, log: testLogger()}

	_, err := l.StateDetails(context.Background(), "c1", hashOf("s1"))
	require.ErrorIs(t, err, interfaces.ErrStateNotFound)
	assert.Equal(t, "getStateDetails", contract.method)

	contract.out = []interface{}{[32]byte{3}, [32]byte{4}, big.NewInt(5), true}
	details, err := l.StateDetails(context.Background(), "c1", hashOf("s1"))
	require.NoError(t, err)
	assert.Equal(t, common.Hash{3}.Bytes(), details.PreviousStateHash)
	assert.EqualValues(t, 5, details.BlockNumber)

	contract.err = errors.New("rpc down")
	_, err = l.StateDetails(context.Background(), "c1", hashOf("s1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrStateNotFound)
}

func TestNew(t *testing.T) {
	l, err := New(context.Background(), interfaces.LedgerConfig{Type: MemoryLedgerType}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, l)

	_, err = New(context.Background(), interfaces.LedgerConfig{Type: "fabric"}, testLogger())
	require.Error(t, err)

	_, err = New(context.Background(), interfaces.LedgerConfig{Type: EthereumLedgerType, ContractAddress: "nope"}, testLogger())
	require.Error(t, err)
}
