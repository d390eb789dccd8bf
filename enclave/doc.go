// Package enclave connects to enclave services over HTTP.
//
// A Connector fetches and verifies an enclave's identity (and optionally its
// attestation) once per URL, then hands out Clients that submit update
// requests and verify the signed responses.
package enclave
