// Package ledger submits contract state updates to a ledger and confirms
// that committed states are globally visible.
//
// Two ledgers are provided: MemoryLedger for tests and local development, and
// EthereumLedger for a state registry contract on an EVM chain. Observer polls
// either one until a state appears.
package ledger
