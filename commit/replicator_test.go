package commit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/ruteri/pdo-contract-client/ledger"
	"github.com/ruteri/pdo-contract-client/metrics"
	"github.com/ruteri/pdo-contract-client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func changeSet(contractID string, raw string) *interfaces.ChangeSet {
	return &interfaces.ChangeSet{
		ContractID:       contractID,
		EnclaveID:        interfaces.NewEnclaveID("0x0000000000000000000000000000000000000abc"),
		NewStateHash:     cryptoutils.ComputeStateHash([]byte(raw)),
		RawState:         []byte(raw),
		InvocationHash:   cryptoutils.ComputeStateHash([]byte("invocation")),
		EnclaveSignature: []byte{1, 2, 3},
	}
}

func await(t *testing.T, ticket interfaces.CommitTicket) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ticket.AwaitLocalAck(ctx)
}

func TestReplicatorCommits(t *testing.T) {
	dir := t.TempDir()
	l := ledger.NewMemoryLedger()
	factory := storage.NewStorageBackendFactory(testLogger())

	r := NewReplicator(l, factory, 2, testLogger())
	r.SetMetrics(metrics.NewCollector("test"))
	defer r.Close()

	changes := changeSet("c1", `{"k":1}`)
	ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{StorageURIs: []string{"file://" + dir}}, changes)
	require.NoError(t, err)

	txID, err := await(t, ticket)
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	details, err := l.StateDetails(context.Background(), "c1", changes.NewStateHash)
	require.NoError(t, err)
	assert.Equal(t, txID, details.TransactionID)

	backend, err := factory.StorageBackendFor("file://" + dir)
	require.NoError(t, err)
	stored, err := backend.Fetch(context.Background(), interfaces.ComputeID(changes.RawState), interfaces.StateType)
	require.NoError(t, err)
	assert.Equal(t, changes.RawState, stored)

	// The ticket keeps its result.
	again, err := await(t, ticket)
	require.NoError(t, err)
	assert.Equal(t, txID, again)

	assert.Equal(t, Stats{Submitted: 1, Committed: 1}, r.Stats())
}

func TestReplicatorWithoutStorage(t *testing.T) {
	l := ledger.NewMemoryLedger()
	r := NewReplicator(l, nil, 1, testLogger())
	defer r.Close()

	ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet("c1", "s"))
	require.NoError(t, err)
	_, err = await(t, ticket)
	require.NoError(t, err)
	assert.Len(t, l.Submitted(), 1)

	_, err = r.SubmitAsync(context.Background(), interfaces.LedgerConfig{StorageURIs: []string{"file:///tmp"}}, changeSet("c1", "s2"))
	require.Error(t, err)
}

func TestReplicatorRejectsInvalidChangeSets(t *testing.T) {
	l := ledger.NewMemoryLedger()
	r := NewReplicator(l, nil, 1, testLogger())
	defer r.Close()

	mismatched := changeSet("c1", "s")
	mismatched.RawState = []byte("other")

	for name, changes := range map[string]*interfaces.ChangeSet{
		"nil":           nil,
		"no contract":   changeSet("", "s"),
		"hash mismatch": mismatched,
		"no state hash": {ContractID: "c1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changes)
			require.ErrorIs(t, err, ErrInvalidChangeSet)
		})
	}

	assert.Empty(t, l.Submitted())
	assert.Zero(t, r.Stats().Submitted)
}

func TestReplicatorInvalidStorageTargets(t *testing.T) {
	r := NewReplicator(ledger.NewMemoryLedger(), storage.NewStorageBackendFactory(testLogger()), 1, testLogger())
	defer r.Close()

	_, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{StorageURIs: []string{"ftp://nowhere"}}, changeSet("c1", "s"))
	require.Error(t, err)
}

func TestReplicatorLedgerFailure(t *testing.T) {
	l := ledger.NewMemoryLedger()
	boom := errors.New("ledger down")
	l.FailSubmissions(boom)

	r := NewReplicator(l, nil, 1, testLogger())
	defer r.Close()

	ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet("c1", "s"))
	require.NoError(t, err)

	txID, err := await(t, ticket)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, txID)
	assert.Equal(t, Stats{Submitted: 1, Failed: 1}, r.Stats())
}

type blockingLedger struct {
	interfaces.LedgerClient
	release chan struct{}
}

func (b *blockingLedger) SubmitStateUpdate(ctx context.Context, update *interfaces.StateUpdate) (string, error) {
	select {
	case <-b.release:
		return "0x01", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestAwaitLocalAckHonoursContext(t *testing.T) {
	l := &blockingLedger{release: make(chan struct{})}
	r := NewReplicator(l, nil, 1, testLogger())
	defer r.Close()

	ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet("c1", "s"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ticket.AwaitLocalAck(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(l.release)
	txID, err := await(t, ticket)
	require.NoError(t, err)
	assert.Equal(t, "0x01", txID)
}

func TestReplicatorConcurrentCommits(t *testing.T) {
	l := ledger.NewMemoryLedger()
	r := NewReplicator(l, nil, 3, testLogger())
	defer r.Close()

	var tickets []interfaces.CommitTicket
	for i := 0; i < 20; i++ {
		ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet(fmt.Sprintf("c%d", i), "s"))
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}

	seen := map[string]bool{}
	for _, ticket := range tickets {
		txID, err := await(t, ticket)
		require.NoError(t, err)
		seen[txID] = true
	}
	assert.Len(t, seen, 20)
}

func TestReplicatorClose(t *testing.T) {
	r := NewReplicator(ledger.NewMemoryLedger(), nil, 1, testLogger())
	ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet("c1", "s"))
	require.NoError(t, err)

	r.Close()
	r.Close()

	select {
	case <-ticket.(*Ticket).Done():
	default:
		t.Fatal("queued commit did not finish before Close returned")
	}

	_, err = r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet("c2", "s"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestReplicatorLedgerBinding(t *testing.T) {
	l := ledger.NewMemoryLedger()
	r := NewReplicator(l, nil, 1, testLogger())
	defer r.Close()

	bound := interfaces.LedgerConfig{
		Type:            "ethereum",
		URL:             "http://127.0.0.1:8545",
		ContractAddress: "0x00000000000000000000000000000000000000Aa",
		ChainID:         1337,
	}
	r.BindLedger(bound)

	sameLedger := bound
	sameLedger.ContractAddress = "0x00000000000000000000000000000000000000aa"
	sameLedger.PollAttempts = 3
	ticket, err := r.SubmitAsync(context.Background(), sameLedger, changeSet("c1", "s"))
	require.NoError(t, err)
	_, err = await(t, ticket)
	require.NoError(t, err)

	mismatches := map[string]func(cfg *interfaces.LedgerConfig){
		"type":     func(cfg *interfaces.LedgerConfig) { cfg.Type = "memory" },
		"url":      func(cfg *interfaces.LedgerConfig) { cfg.URL = "http://10.0.0.1:8545" },
		"contract": func(cfg *interfaces.LedgerConfig) { cfg.ContractAddress = "0x00000000000000000000000000000000000000bb" },
		"chain":    func(cfg *interfaces.LedgerConfig) { cfg.ChainID = 1 },
	}
	for name, mutate := range mismatches {
		t.Run(name, func(t *testing.T) {
			cfg := bound
			mutate(&cfg)
			_, err := r.SubmitAsync(context.Background(), cfg, changeSet("c1", "s2"))
			require.ErrorIs(t, err, ErrLedgerMismatch)
		})
	}

	assert.Len(t, l.Submitted(), 1)
	assert.Equal(t, uint64(1), r.Stats().Submitted)
}

func TestReplicatorMetrics(t *testing.T) {
	collector := metrics.NewCollector("test")
	r := NewReplicator(ledger.NewMemoryLedger(), nil, 1, testLogger())
	r.SetMetrics(collector)
	defer r.Close()

	ticket, err := r.SubmitAsync(context.Background(), interfaces.LedgerConfig{}, changeSet("c1", "s"))
	require.NoError(t, err)
	_, err = await(t, ticket)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(collector.Registry(), "test_commit_tasks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
