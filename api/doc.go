// Package api defines the HTTP wire format spoken between the contract client
// and enclave services, and the shared HTTP server configuration.
//
// Endpoints:
//
//	GET  /info    EnclaveInfoResponse
//	POST /invoke  InvokeRequest -> InvokeResponse
//
// Errors are reported as ErrorResponse with a non-2xx status. An invocation
// the enclave refused is not an error at this level: it is a 200 response
// whose Status is false and whose InvocationResponse carries the explanation.
package api
