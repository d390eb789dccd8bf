package registry

import (
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the EnclaveRegistry interface
type MockRegistry struct {
	mock.Mock
}

// GetByID mocks the GetByID method
func (m *MockRegistry) GetByID(id interfaces.EnclaveID) (*interfaces.EnclaveRecord, error) {
	args := m.Called(id)
	record, _ := args.Get(0).(*interfaces.EnclaveRecord)
	return record, args.Error(1)
}

// GetByName mocks the GetByName method
func (m *MockRegistry) GetByName(name string) (*interfaces.EnclaveRecord, error) {
	args := m.Called(name)
	record, _ := args.Get(0).(*interfaces.EnclaveRecord)
	return record, args.Error(1)
}

// Add mocks the Add method
func (m *MockRegistry) Add(record interfaces.EnclaveRecord) error {
	args := m.Called(record)
	return args.Error(0)
}

// Remove mocks the Remove method
func (m *MockRegistry) Remove(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// List mocks the List method
func (m *MockRegistry) List() ([]interfaces.EnclaveRecord, error) {
	args := m.Called()
	records, _ := args.Get(0).([]interfaces.EnclaveRecord)
	return records, args.Error(1)
}
