package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable marks any failure to get an answer from the ledger.
	ErrRemoteUnavailable = errors.New("remote ledger unavailable")
	ErrObjectNotFound    = errors.New("object not found")
	ErrExecutionFailed   = errors.New("transaction execution failed")
)

// CallError wraps a failed RPC call. It matches ErrRemoteUnavailable with errors.Is.
type CallError struct {
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *CallError) Unwrap() []error {
	return []error{ErrRemoteUnavailable, e.Err}
}
