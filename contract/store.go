package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

const (
	cacheDirectory   = "__contract_cache__"
	contractFileExt  = ".pdo"
	contractFileMode = 0644
)

// ErrContractNotFound is returned when no record exists for a handle.
var ErrContractNotFound = errors.New("contract not found")

// FileStore keeps contract records as JSON files under a data directory.
// A handle is either a bare name, stored under the contract cache, or a path.
type FileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

// Path returns the file backing a handle.
func (s *FileStore) Path(handle string) string {
	return common.BuildFileName(handle, s.dataDir, cacheDirectory, contractFileExt)
}

func (s *FileStore) Load(handle string) (*interfaces.Contract, error) {
	path := s.Path(handle)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read contract %s: %w", path, err)
	}

	var contract interfaces.Contract
	if err := json.Unmarshal(data, &contract); err != nil {
		return nil, fmt.Errorf("failed to decode contract %s: %w", path, err)
	}
	if contract.ID == "" {
		return nil, fmt.Errorf("contract %s has no id", path)
	}
	for i, id := range contract.ProvisionedEnclaves {
		contract.ProvisionedEnclaves[i] = interfaces.NewEnclaveID(string(id))
	}
	return &contract, nil
}

// Save replaces the record atomically.
func (s *FileStore) Save(handle string, contract *interfaces.Contract) error {
	path := s.Path(handle)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create contract directory: %w", err)
	}

	data, err := json.MarshalIndent(contract, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, contractFileMode); err != nil {
		return fmt.Errorf("failed to write contract: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write contract: %w", err)
	}
	return nil
}
