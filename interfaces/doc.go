// Package interfaces defines the types shared by the contract client's
// components and the contracts between them.
//
// # Data model
//
// Contract is the client-side record of a contract: its provisioned enclaves,
// extra data (including the preferred-enclave hint) and last known state.
// UpdateRequest and UpdateResponse are the signed messages exchanged with an
// enclave. ChangeSet is the part of a response that is replicated and
// committed to the ledger.
//
// # Collaborators
//
// EnclaveService, EnclaveConnector and EnclaveRegistry locate and talk to
// enclaves. CommitSubmitter, CommitTicket and LedgerObserver drive a change
// set to local and global commitment. StorageBackend replicates raw states.
//
// # Errors
//
// Every update stage wraps its failure in one sentinel from errors.go, so
// callers can classify failures with errors.Is. A refused invocation is a
// *RejectedInvocationError.
package interfaces
