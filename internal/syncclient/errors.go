package syncclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. ServerRejected and ValidationError match them through
// errors.Is where applicable.
var (
	ErrSessionExpired = errors.New("session expired")
	ErrForbidden      = errors.New("forbidden")
	ErrNotLoaded      = errors.New("table not loaded")
	ErrClosed         = errors.New("session closed")
	ErrQueueFull      = errors.New("save queue full")
)

// TransportError is a request that never got an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerRejected is a non-2xx response. Code and Message come from the
// JSON error body when the server sent one.
type ServerRejected struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *ServerRejected) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: server rejected (%d): %s", e.Op, e.Status, msg)
}

// Is maps 401 to ErrSessionExpired and 403 to ErrForbidden.
func (e *ServerRejected) Is(target error) bool {
	switch target {
	case ErrSessionExpired:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

// ValidationError is a local precondition failure; nothing was sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError. Only these
// are worth retrying.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
