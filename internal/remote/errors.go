package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/resilience"
)

// Kind classifies a failed remote call.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindTimeout      Kind = "timeout"
	KindProvider     Kind = "provider"
	KindInvalidInput Kind = "invalid_input"
)

// Sentinels for errors.Is checks against *Error.
var (
	ErrUnauthorized = eris.New("remote: unauthorized")
	ErrRateLimited  = eris.New("remote: rate limited")
	ErrTimeout      = eris.New("remote: timeout")
	ErrProvider     = eris.New("remote: provider error")
	ErrInvalidInput = eris.New("remote: invalid input")
)

// Error is returned by Client.Call for every classified failure.
type Error struct {
	Kind       Kind
	StatusCode int
	// Attempts is the number of attempts made before giving up.
	Attempts int
	// Permanent marks provider errors that must not be retried.
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote: %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrProvider:
		return e.Kind == KindProvider
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	}
	return false
}

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout:
		return true
	case KindProvider:
		return !e.Permanent
	default:
		return false
	}
}

// KindOf returns the Kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// StatusError is how providers report a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status to a Kind.
func classifyStatus(code int) (Kind, bool) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized, true
	case code == http.StatusTooManyRequests:
		return KindRateLimited, false
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout, false
	case code >= 500:
		return KindProvider, false
	default:
		// A malformed request does not improve with retries.
		return KindProvider, true
	}
}

// classify turns a provider failure into an *Error. attemptCtx is the
// per-attempt context whose deadline is the request timeout.
func classify(attemptCtx context.Context, err error) *Error {
	if re, ok := err.(*Error); ok {
		return re
	}

	var se *StatusError
	if errors.As(err, &se) {
		kind, permanent := classifyStatus(se.StatusCode)
		return &Error{Kind: kind, StatusCode: se.StatusCode, Permanent: permanent, Err: err}
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &Error{Kind: KindProvider, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	// Network failures and unreadable responses are worth another try.
	return &Error{Kind: KindProvider, Err: err}
}

func isRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return resilience.IsTransient(err)
}

// tripsBreaker reports whether a raw provider error says the provider is
// unhealthy, as opposed to the request being wrong.
func tripsBreaker(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.StatusCode)
	}
	return true
}
