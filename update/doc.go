/*
Package update applies a state-changing invocation to a contract executing in
an enclave and drives the resulting state to commitment on the ledger.

The protocol runs as a strictly sequential chain, each stage failing closed:

	Selector     resolve an enclave directive to a provisioned enclave
	Coordinator  load credentials, evaluate the signed request, check status
	CommitDriver submit the change set, await local ack, optionally await
	             global confirmation

Sender composes the chain. Every stage wraps its failure in exactly one of the
sentinels in package interfaces (or returns *interfaces.RejectedInvocationError),
so callers can tell stages apart with errors.Is and errors.As.

Nothing in this package sets deadlines or retries: the caller's context bounds
the whole chain and a hanging collaborator hangs the call until it expires.
*/
package update
