package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ruteri/pdo-contract-client/interfaces"
)

var (
	// ErrNameTaken is returned when a name is already bound to another enclave.
	ErrNameTaken = errors.New("enclave name already in use")

	// ErrInvalidRecord is returned for records missing an id, name or URL.
	ErrInvalidRecord = errors.New("invalid enclave record")
)

// MemoryRegistry is an in-memory interfaces.EnclaveRegistry.
type MemoryRegistry struct {
	mutex   sync.RWMutex
	records map[interfaces.EnclaveID]interfaces.EnclaveRecord
	names   map[string]interfaces.EnclaveID
}

// NewMemoryRegistry creates an empty registry, optionally seeded with records.
func NewMemoryRegistry(records ...interfaces.EnclaveRecord) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		records: make(map[interfaces.EnclaveID]interfaces.EnclaveRecord),
		names:   make(map[string]interfaces.EnclaveID),
	}
	for _, record := range records {
		if err := r.Add(record); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *MemoryRegistry) GetByID(id interfaces.EnclaveID) (*interfaces.EnclaveRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, ok := r.records[interfaces.NewEnclaveID(string(id))]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", interfaces.ErrEnclaveRecordNotFound, id)
	}
	return &record, nil
}

func (r *MemoryRegistry) GetByName(name string) (*interfaces.EnclaveRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: name %s", interfaces.ErrEnclaveRecordNotFound, name)
	}
	record := r.records[id]
	return &record, nil
}

func (r *MemoryRegistry) Add(record interfaces.EnclaveRecord) error {
	record, err := normalizeRecord(record)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if owner, ok := r.names[record.Name]; ok && owner != record.EnclaveID {
		return fmt.Errorf("%w: %s is bound to %s", ErrNameTaken, record.Name, owner)
	}
	if previous, ok := r.records[record.EnclaveID]; ok {
		delete(r.names, previous.Name)
	}

	r.records[record.EnclaveID] = record
	r.names[record.Name] = record.EnclaveID
	return nil
}

func (r *MemoryRegistry) Remove(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id, ok := r.names[name]
	if !ok {
		return fmt.Errorf("%w: name %s", interfaces.ErrEnclaveRecordNotFound, name)
	}
	delete(r.names, name)
	delete(r.records, id)
	return nil
}

func (r *MemoryRegistry) List() ([]interfaces.EnclaveRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	records := make([]interfaces.EnclaveRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	sortRecords(records)
	return records, nil
}

func normalizeRecord(record interfaces.EnclaveRecord) (interfaces.EnclaveRecord, error) {
	record.EnclaveID = interfaces.NewEnclaveID(string(record.EnclaveID))
	record.Name = strings.TrimSpace(record.Name)
	if record.EnclaveID == "" || record.Name == "" || record.URL == "" {
		return record, fmt.Errorf("%w: id, name and url are required", ErrInvalidRecord)
	}
	return record, nil
}

func sortRecords(records []interfaces.EnclaveRecord) {
	slices.SortFunc(records, func(a, b interfaces.EnclaveRecord) int {
		return strings.Compare(a.Name, b.Name)
	})
}
