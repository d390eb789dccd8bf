/*
Package httpserver implements a simulated enclave service for local
development and tests.

The service holds a secp256k1 signing key standing in for the enclave key and
evaluates signed update requests against a trivial key/value contract:

  - get_value(key) returns the stored value
  - set_value(key, value) stores a value
  - inc_value(key[, amount]) adds a number to a value, starting from zero
  - fail([message]) always refuses the invocation

Parameters are taken from keyword parameters by name or else by position.
Contract state is a JSON object. Every response is signed over
interfaces.UpdateResponse.Digest so clients verify it the same way they would
a real enclave.

# Endpoints

  - GET  /info     enclave id, verifying key and optional attestation
  - POST /invoke   evaluate an api.InvokeRequest
  - GET  /livez, /readyz, /drain, /undrain
  - /debug/pprof when enabled

Metrics are served on a separate listener, see package metrics.
*/
package httpserver
