package interfaces

import (
	"errors"
	"fmt"
)

// Each stage of an update wraps its cause in exactly one of these.
var (
	ErrCredential          = errors.New("credential error")
	ErrContractLoad        = errors.New("contract load error")
	ErrConnection          = errors.New("enclave connection error")
	ErrUnauthorizedEnclave = errors.New("enclave not provisioned for contract")
	ErrEnclaveNotFound     = errors.New("enclave not found")
	ErrEvaluation          = errors.New("evaluation error")
	ErrSubmit              = errors.New("commit submission error")
	ErrCommitAck           = errors.New("commit acknowledgment error")
	ErrGlobalCommit        = errors.New("global commit error")
)

// RejectedInvocationError reports an invocation the enclave evaluated and
// refused. Explanation is the enclave's message, verbatim.
type RejectedInvocationError struct {
	Explanation string
}

func (e *RejectedInvocationError) Error() string {
	return fmt.Sprintf("invocation rejected: %s", e.Explanation)
}
