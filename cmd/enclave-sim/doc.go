// Package main (cmd/enclave-sim) serves a development enclave that evaluates a
// key/value contract and signs its responses.
//
// The enclave identity is the address of its signing key. With
// --enclave-key-file the key is loaded from the file, or generated and written
// there on first start; without it every start is a new enclave. With
// --attestation-type the /info endpoint also carries attestation evidence over
// the verifying key.
//
// Example:
//
//	enclave-sim --listen-addr 127.0.0.1:7101 --enclave-key-file enclave.pem --attestation-type dummy
//
// Register it with the client:
//
//	pdo-client eservice add --url http://127.0.0.1:7101 --name local
package main
