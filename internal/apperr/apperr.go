package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Reason is a stable, machine-readable failure code shared by the gateway,
// the orchestrator, the persistence layer and the HTTP surface.
type Reason string

const (
	InvalidInput        Reason = "invalid_input"
	NotConfigured       Reason = "not_configured"
	UpstreamError       Reason = "upstream_error"
	Timeout             Reason = "timeout"
	BudgetExceeded      Reason = "budget_exceeded"
	TranscriptionFailed Reason = "transcription_failed"
	RemoteWriteFailed   Reason = "remote_write_failed"
	NotFound            Reason = "not_found"
	Unauthorized        Reason = "unauthorized"
)

type Error struct {
	Reason Reason
	Op     string
	Err    error

	// RetryAfter is only set for BudgetExceeded.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same reason, so callers can write
// errors.Is(err, apperr.E(apperr.NotFound)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason && t.Op == "" && t.Err == nil
}

func New(reason Reason, op string, err error) *Error {
	return &Error{Reason: reason, Op: op, Err: err}
}

func Newf(reason Reason, op, format string, args ...interface{}) *Error {
	return &Error{Reason: reason, Op: op, Err: fmt.Errorf(format, args...)}
}

// E returns a bare reason marker for use with errors.Is.
func E(reason Reason) *Error {
	return &Error{Reason: reason}
}

// ReasonOf extracts the outermost reason from err. Context deadline errors
// map to Timeout; anything else unrecognised is an UpstreamError.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return UpstreamError
}

func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func HTTPStatus(reason Reason) int {
	switch reason {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case BudgetExceeded:
		return http.StatusTooManyRequests
	case NotConfigured:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	case UpstreamError, TranscriptionFailed, RemoteWriteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus maps an HTTP status returned by our own API back to a reason.
func FromStatus(status int) Reason {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return InvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return Unauthorized
	case http.StatusNotFound:
		return NotFound
	case http.StatusTooManyRequests:
		return BudgetExceeded
	case http.StatusServiceUnavailable:
		return NotConfigured
	case http.StatusGatewayTimeout:
		return Timeout
	default:
		return UpstreamError
	}
}
