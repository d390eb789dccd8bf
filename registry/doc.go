// Package registry implements the enclave service database: the mapping from
// human-readable enclave names to enclave ids and service URLs.
//
// Two implementations of interfaces.EnclaveRegistry are provided:
//
//   - MemoryRegistry keeps records in memory, for tests and one-shot tools.
//   - BoltRegistry persists records in a bbolt database file, keyed by
//     enclave id with a secondary name index.
//
// Names are unique. Adding a record for a known enclave id replaces its URL
// and name; adding a name already bound to another enclave fails with
// ErrNameTaken.
//
// MockRegistry is a testify mock of interfaces.EnclaveRegistry.
package registry
