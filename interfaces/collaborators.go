package interfaces

import (
	"context"
	"errors"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
)

// ErrEnclaveRecordNotFound is returned by registries on a lookup miss.
var ErrEnclaveRecordNotFound = errors.New("enclave record not found")

// EnclaveService is a connected enclave able to evaluate update requests.
type EnclaveService interface {
	EnclaveID() EnclaveID
	URL() string

	// Evaluate runs the request inside the enclave. The returned response
	// carries a verified enclave signature.
	Evaluate(ctx context.Context, req *UpdateRequest) (*UpdateResponse, error)
}

// EnclaveConnector opens enclave services by URL. Errors wrap ErrConnection.
type EnclaveConnector interface {
	Connect(ctx context.Context, url string) (EnclaveService, error)
}

// EnclaveRegistry is the enclave service database.
type EnclaveRegistry interface {
	GetByID(id EnclaveID) (*EnclaveRecord, error)
	GetByName(name string) (*EnclaveRecord, error)
	Add(record EnclaveRecord) error
	Remove(name string) error
	List() ([]EnclaveRecord, error)
}

// KeyStore loads the invoker's signing keys.
type KeyStore interface {
	LoadKeys(path string, searchPath []string) (*cryptoutils.ClientKeys, error)
}

// ContractStore persists client-side contract records.
type ContractStore interface {
	Load(handle string) (*Contract, error)
	Save(handle string, contract *Contract) error
}

// CommitSubmitter starts replication and ledger commit of a change set.
// SubmitAsync returns once the work is queued; errors are initiation errors.
type CommitSubmitter interface {
	SubmitAsync(ctx context.Context, cfg LedgerConfig, changes *ChangeSet) (CommitTicket, error)
}

// CommitTicket tracks a submitted change set.
type CommitTicket interface {
	// AwaitLocalAck blocks until the change set is committed locally and
	// returns its transaction id.
	AwaitLocalAck(ctx context.Context) (string, error)
}

// LedgerObserver confirms a state is visible on the ledger.
type LedgerObserver interface {
	AwaitGlobalState(ctx context.Context, contractID string, encodedStateHash string) error
}
