package update

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/ruteri/pdo-contract-client/ledger"
	"github.com/ruteri/pdo-contract-client/registry"
	"github.com/stretchr/testify/require"
)

var (
	e1 = interfaces.NewEnclaveID("0x00000000000000000000000000000000000000e1")
	e2 = interfaces.NewEnclaveID("0x00000000000000000000000000000000000000e2")
	e3 = interfaces.NewEnclaveID("0x00000000000000000000000000000000000000e3")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type responder func(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error)

type fakeEnclave struct {
	id  interfaces.EnclaveID
	url string

	mu      sync.Mutex
	calls   int
	respond responder
}

func (f *fakeEnclave) EnclaveID() interfaces.EnclaveID { return f.id }
func (f *fakeEnclave) URL() string                     { return f.url }

func (f *fakeEnclave) Evaluate(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error) {
	f.mu.Lock()
	f.calls++
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, req)
}

func (f *fakeEnclave) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func changedState(raw string, result string) responder {
	return func(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error) {
		return &interfaces.UpdateResponse{
			ContractID:         req.ContractID,
			EnclaveID:          req.EnclaveID,
			Status:             true,
			InvocationResponse: result,
			StateChanged:       true,
			OldStateHash:       req.StateHash,
			NewStateHash:       cryptoutils.ComputeStateHash([]byte(raw)),
			RawState:           []byte(raw),
			InvocationHash:     req.InvocationHash,
		}, nil
	}
}

func unchangedState(result string) responder {
	return func(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error) {
		return &interfaces.UpdateResponse{
			ContractID:         req.ContractID,
			EnclaveID:          req.EnclaveID,
			Status:             true,
			InvocationResponse: result,
			OldStateHash:       req.StateHash,
			NewStateHash:       req.StateHash,
			InvocationHash:     req.InvocationHash,
		}, nil
	}
}

func rejected(explanation string) responder {
	return func(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error) {
		return &interfaces.UpdateResponse{
			ContractID:         req.ContractID,
			EnclaveID:          req.EnclaveID,
			InvocationResponse: explanation,
			OldStateHash:       req.StateHash,
			InvocationHash:     req.InvocationHash,
		}, nil
	}
}

func hang(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeConnector struct {
	mu       sync.Mutex
	enclaves map[string]*fakeEnclave
	connects []string
}

func (f *fakeConnector) Connect(ctx context.Context, url string) (interfaces.EnclaveService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, url)
	enclave, ok := f.enclaves[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s unreachable", interfaces.ErrConnection, url)
	}
	return enclave, nil
}

type fakeKeyStore struct {
	keys *cryptoutils.ClientKeys
	err  error
}

func (f *fakeKeyStore) LoadKeys(path string, searchPath []string) (*cryptoutils.ClientKeys, error) {
	return f.keys, f.err
}

type fakeTicket struct {
	txID string
	err  error
	hang bool
}

func (f *fakeTicket) AwaitLocalAck(ctx context.Context) (string, error) {
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.txID, f.err
}

// fakeSubmitter acknowledges with ticket. With a ledger set it commits
// synchronously and acknowledges with the ledger's transaction id.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []*interfaces.ChangeSet
	submitErr error
	ticket    *fakeTicket
	ledger    interfaces.LedgerClient
}

func (f *fakeSubmitter) SubmitAsync(ctx context.Context, cfg interfaces.LedgerConfig, changes *interfaces.ChangeSet) (interfaces.CommitTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, changes)
	if f.ledger != nil {
		txID, err := f.ledger.SubmitStateUpdate(ctx, &interfaces.StateUpdate{
			ContractID:       changes.ContractID,
			OldStateHash:     changes.OldStateHash,
			NewStateHash:     changes.NewStateHash,
			InvocationHash:   changes.InvocationHash,
			EnclaveSignature: changes.EnclaveSignature,
		})
		return &fakeTicket{txID: txID, err: err}, nil
	}
	if f.ticket == nil {
		return nil, nil
	}
	return f.ticket, nil
}

func (f *fakeSubmitter) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeObserver) AwaitGlobalState(ctx context.Context, contractID string, encodedStateHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, contractID+"@"+encodedStateHash)
	return f.err
}

// countingLedger counts state lookups.
type countingLedger struct {
	*ledger.MemoryLedger

	mu      sync.Mutex
	lookups int
}

func (l *countingLedger) StateDetails(ctx context.Context, contractID string, stateHash []byte) (*interfaces.StateDetails, error) {
	l.mu.Lock()
	l.lookups++
	l.mu.Unlock()
	return l.MemoryLedger.StateDetails(ctx, contractID, stateHash)
}

func (l *countingLedger) lookupCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookups
}

type harness struct {
	enclaves  map[interfaces.EnclaveID]*fakeEnclave
	connector *fakeConnector
	registry  *registry.MemoryRegistry
	keys      *fakeKeyStore
	submitter *fakeSubmitter
	observer  *fakeObserver
	selector  *Selector
	sender    *Sender
}

// newHarness registers e1 (alpha), e2 (beta) and e3 (gamma), all reachable and
// answering with respond.
func newHarness(t *testing.T, respond responder) *harness {
	keys, err := cryptoutils.GenerateClientKeys()
	require.NoError(t, err)

	h := &harness{
		enclaves:  map[interfaces.EnclaveID]*fakeEnclave{},
		connector: &fakeConnector{enclaves: map[string]*fakeEnclave{}},
		keys:      &fakeKeyStore{keys: keys},
		submitter: &fakeSubmitter{ticket: &fakeTicket{txID: "tx-123"}},
		observer:  &fakeObserver{},
	}

	h.registry, err = registry.NewMemoryRegistry()
	require.NoError(t, err)
	for name, id := range map[string]interfaces.EnclaveID{"alpha": e1, "beta": e2, "gamma": e3} {
		url := "http://" + name + ".enclave.test:7101"
		enclave := &fakeEnclave{id: id, url: url, respond: respond}
		h.enclaves[id] = enclave
		h.connector.enclaves[url] = enclave
		require.NoError(t, h.registry.Add(interfaces.EnclaveRecord{EnclaveID: id, URL: url, Name: name}))
	}

	h.selector = NewSelector(h.connector, h.registry, rand.New(rand.NewPCG(1, 2)), testLogger())
	h.sender = NewSender(
		h.selector,
		NewCoordinator(h.keys, nil, testLogger()),
		NewCommitDriver(h.submitter, h.observer, testLogger()),
		testLogger(),
	)
	return h
}

func (h *harness) evaluations() int {
	total := 0
	for _, enclave := range h.enclaves {
		total += enclave.callCount()
	}
	return total
}

func newContract() *interfaces.Contract {
	c := &interfaces.Contract{
		ID:                  "contract-1",
		ProvisionedEnclaves: []interfaces.EnclaveID{e1, e2},
		ExtraData:           map[string]string{interfaces.PreferredEnclaveKey: string(e1)},
	}
	c.SetState([]byte(`{"counter":1}`))
	return c
}

func invocation(method string, args ...any) *interfaces.InvocationRequest {
	return &interfaces.InvocationRequest{Method: method, PositionalParameters: args}
}

// memoryStore hands out and keeps clones, like a file store would.
type memoryStore struct {
	mu        sync.Mutex
	contracts map[string]*interfaces.Contract
	saveErr   error
}

func (m *memoryStore) Load(handle string) (*interfaces.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[handle]
	if !ok {
		return nil, fmt.Errorf("no contract %q", handle)
	}
	return c.Clone(), nil
}

func (m *memoryStore) Save(handle string, c *interfaces.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.contracts[handle] = c.Clone()
	return nil
}
