package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies backend failures for callers that branch on cause.
type ErrorKind string

// Supported failure kinds.
const (
	// KindConnectionFailed marks transport-level failures reaching a fetch
	// service or origin. Retry policy, if any, belongs to the caller.
	KindConnectionFailed ErrorKind = "connection_failed"
	// KindProtocolError marks responses that could not be decoded, including
	// a connection closed with no data.
	KindProtocolError ErrorKind = "protocol_error"
	// KindBackendUnavailable marks a missing external dependency (browser
	// binary, helper service). Raised at construction time, fatal to startup.
	KindBackendUnavailable ErrorKind = "backend_unavailable"
)

// Error is the typed failure returned by backends.
type Error struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

// NewError wraps err with a kind and the name of the originating backend.
func NewError(kind ErrorKind, backend string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a fetch Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}
