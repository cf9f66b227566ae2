package billing

import "errors"

// ErrorKind classifies failures so HTTP handlers can map them to status codes
// without inspecting message strings.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindPending    ErrorKind = "pending"
	KindInternal   ErrorKind = "internal"
)

// Error carries a kind plus a client-safe message. Pending errors also carry
// a retry hint in seconds.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func conflictError(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func pendingError(msg string, retryAfter int) error {
	return &Error{Kind: KindPending, Message: msg, RetryAfter: retryAfter}
}

func internalError(msg string, cause error) error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// KindOf extracts the kind from an error chain; unclassified errors are
// internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterOf returns the retry hint carried by a pending error, or 0.
func RetryAfterOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
