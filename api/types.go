package api

import (
	"github.com/ruteri/pdo-contract-client/interfaces"
)

const (
	// InfoPath serves the enclave's identity and attestation.
	InfoPath = "/info"

	// InvokePath evaluates an update request.
	InvokePath = "/invoke"
)

// EnclaveInfoResponse describes an enclave service.
type EnclaveInfoResponse struct {
	// EnclaveID is the address derived from VerifyingKey
	EnclaveID interfaces.EnclaveID `json:"enclave_id"`

	// VerifyingKey is the uncompressed secp256k1 key the enclave signs responses with
	VerifyingKey []byte `json:"verifying_key"`

	// AttestationType is "qemu-tdx", "dummy" or empty
	AttestationType string `json:"attestation_type,omitempty"`

	// Attestation binds VerifyingKey to the enclave, see cryptoutils.EnclaveReportData
	Attestation []byte `json:"attestation,omitempty"`
}

// InvokeRequest is the body of POST /invoke.
type InvokeRequest = interfaces.UpdateRequest

// InvokeResponse is the body of a successful POST /invoke. A rejected
// invocation is still a successful response with Status false.
type InvokeResponse = interfaces.UpdateResponse

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
