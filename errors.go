package pmind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrEmptyInput indicates Send was called with blank text.
	ErrEmptyInput = errors.New("empty input")

	// ErrBusy indicates a send is already in flight.
	ErrBusy = errors.New("a response is already streaming")

	// ErrSignedOut indicates an identity is required but nobody is signed in.
	ErrSignedOut = errors.New("not signed in")

	// ErrSessionClosed indicates an operation on a closed Session.
	ErrSessionClosed = errors.New("session closed")

	// ErrQuotaExceeded indicates the chat backend rejected the request
	// because a request quota or rate limit was reached.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUpstream indicates the chat backend failed for any other reason.
	ErrUpstream = errors.New("upstream error")
)

// StatusError reports a non-success HTTP status from the chat endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is matches ErrQuotaExceeded for 429 responses and ErrUpstream for
// everything else.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUpstream:
		return e.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// Retryable reports whether a send that failed with err may succeed if
// tried again later: quota exhaustion, 5xx responses, timeouts and network
// errors. Validation failures and other 4xx responses are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
