// Package main (cmd/pdo-client) invokes confidential contracts.
//
//	pdo-client keys generate -i alice
//	pdo-client eservice add --url http://127.0.0.1:7101 --name local
//	pdo-client contract init -f counter --id counter-1 -e local --preferred local
//	pdo-client -i alice send -f counter --wait set_value counter 5
//	pdo-client -i alice send -f counter -k amount=2 inc_value counter
//
// send selects an enclave (-e: URL, "preferred", "random" or a registered
// name), evaluates the invocation and, if the state changed, replicates it to
// the configured storage targets and commits it to the ledger before saving
// the contract record. The result is printed on stdout.
package main
