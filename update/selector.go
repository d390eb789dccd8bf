package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// Enclave directives besides URLs and registered names.
const (
	DirectivePreferred = "preferred"
	DirectiveRandom    = "random"
)

// Selector resolves enclave directives against the enclave service database.
type Selector struct {
	connector interfaces.EnclaveConnector
	registry  interfaces.EnclaveRegistry
	log       *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector draws random choices from rng.
func NewSelector(connector interfaces.EnclaveConnector, registry interfaces.EnclaveRegistry, rng *rand.Rand, log *slog.Logger) *Selector {
	return &Selector{
		connector: connector,
		registry:  registry,
		rng:       rng,
		log:       log,
	}
}

// Select connects to the enclave named by directive, which must be
// provisioned for c. The first matching rule wins:
//
//  1. a service URL is connected to directly
//  2. "" or "preferred" uses the contract's preferred enclave, else a random one
//  3. "random" picks uniformly from the provisioned enclaves
//  4. anything else is a registered enclave name
func (s *Selector) Select(ctx context.Context, directive string, c *interfaces.Contract) (interfaces.EnclaveService, error) {
	switch {
	case common.ValidServiceURL(directive):
		svc, err := s.connect(ctx, directive)
		if err != nil {
			return nil, err
		}
		if !c.IsProvisioned(svc.EnclaveID()) {
			return nil, fmt.Errorf("%w: enclave %s at %s is not provisioned for contract %s",
				interfaces.ErrUnauthorizedEnclave, svc.EnclaveID(), directive, c.ID)
		}
		return svc, nil

	case directive == "" || directive == DirectivePreferred:
		if id, ok := c.PreferredEnclave(); ok {
			s.log.Debug("Using preferred enclave", "contractID", c.ID, "enclaveID", id)
			return s.connectByID(ctx, id, c)
		}
		return s.connectRandom(ctx, c)

	case directive == DirectiveRandom:
		return s.connectRandom(ctx, c)

	default:
		record, err := s.registry.GetByName(directive)
		if err != nil {
			return nil, lookupError(err, "enclave name "+directive)
		}
		return s.connectRecord(ctx, record, c)
	}
}

func (s *Selector) connectRandom(ctx context.Context, c *interfaces.Contract) (interfaces.EnclaveService, error) {
	if len(c.ProvisionedEnclaves) == 0 {
		return nil, fmt.Errorf("%w: contract %s has no provisioned enclaves", interfaces.ErrEnclaveNotFound, c.ID)
	}

	s.mu.Lock()
	id := c.ProvisionedEnclaves[s.rng.IntN(len(c.ProvisionedEnclaves))]
	s.mu.Unlock()

	s.log.Debug("Picked random enclave", "contractID", c.ID, "enclaveID", id)
	return s.connectByID(ctx, id, c)
}

func (s *Selector) connectByID(ctx context.Context, id interfaces.EnclaveID, c *interfaces.Contract) (interfaces.EnclaveService, error) {
	if !c.IsProvisioned(id) {
		return nil, fmt.Errorf("%w: enclave %s is not provisioned for contract %s", interfaces.ErrUnauthorizedEnclave, id, c.ID)
	}
	record, err := s.registry.GetByID(id)
	if err != nil {
		return nil, lookupError(err, "enclave "+id.String())
	}
	return s.connectRecord(ctx, record, c)
}

func (s *Selector) connectRecord(ctx context.Context, record *interfaces.EnclaveRecord, c *interfaces.Contract) (interfaces.EnclaveService, error) {
	if !c.IsProvisioned(record.EnclaveID) {
		return nil, fmt.Errorf("%w: enclave %s is not provisioned for contract %s", interfaces.ErrUnauthorizedEnclave, record.EnclaveID, c.ID)
	}

	svc, err := s.connect(ctx, record.URL)
	if err != nil {
		return nil, err
	}
	if interfaces.NewEnclaveID(string(svc.EnclaveID())) != interfaces.NewEnclaveID(string(record.EnclaveID)) {
		return nil, fmt.Errorf("%w: %s now serves enclave %s, registered as %s",
			interfaces.ErrUnauthorizedEnclave, record.URL, svc.EnclaveID(), record.EnclaveID)
	}
	return svc, nil
}

func (s *Selector) connect(ctx context.Context, url string) (interfaces.EnclaveService, error) {
	svc, err := s.connector.Connect(ctx, url)
	if err != nil {
		if errors.Is(err, interfaces.ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrConnection, url, err)
	}
	return svc, nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, interfaces.ErrEnclaveRecordNotFound) {
		return fmt.Errorf("%w: %s", interfaces.ErrEnclaveNotFound, what)
	}
	return fmt.Errorf("%w: %s: %w", interfaces.ErrEnclaveNotFound, what, err)
}
