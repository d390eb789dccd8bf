// Package commit replicates evaluated contract states and commits them to the
// ledger in the background.
//
// Replicator.SubmitAsync validates a change set, queues it on a bounded worker
// pool and returns a Ticket. The worker stores the raw state and the change
// set in the configured storage backends, then submits the state update to
// the ledger; the ticket resolves with the ledger transaction id.
package commit
