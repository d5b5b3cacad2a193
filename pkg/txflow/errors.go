package txflow

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes why a lifecycle failed.
type ErrorKind string

const (
	// KindValidation: user input or signer state rejected before any network call.
	KindValidation ErrorKind = "validation"

	// KindConfiguration: a required contract identifier is missing.
	KindConfiguration ErrorKind = "configuration"

	// KindSubmission: signing or submitting the transaction failed.
	KindSubmission ErrorKind = "submission"

	// KindConfirmationTimeout: the transaction was submitted but never confirmed in time.
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"

	// KindRemoteUnavailable: a read needed to build the transaction failed.
	KindRemoteUnavailable ErrorKind = "remote_unavailable"
)

// Error is the failure reason recorded on a lifecycle. Message is the short
// user-facing text; Err, when present, is the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func configurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// KindOf returns the kind of a txflow error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
