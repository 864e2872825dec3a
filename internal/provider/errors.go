package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind represents the category of failure from an upstream provider call
type Kind string

const (
	// KindNetwork indicates a network-level error (connection refused, DNS, etc.)
	KindNetwork Kind = "network"
	// KindRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	KindRateLimit Kind = "rate_limit"
	// KindServer indicates a server error (HTTP 5xx)
	KindServer Kind = "server"
	// KindClient indicates a client error (HTTP 4xx except 429)
	KindClient Kind = "client"
	// KindValidation indicates the response was received but its shape was not recognized
	KindValidation Kind = "validation"
	// KindTimeout indicates the request timed out
	KindTimeout Kind = "timeout"
	// KindUnknown indicates an error of unknown type
	KindUnknown Kind = "unknown"
)

// Error is the classified outcome of a failed provider call. Adapters never
// surface raw HTTP statuses; every transport or HTTP failure is classified
// before it crosses into orchestration logic, where the kind decides whether
// a fallback chain runs.
type Error struct {
	Kind       Kind
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *Error {
	return &Error{
		Kind:      KindNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewServerError creates a server error
func NewServerError(statusCode int) *Error {
	return &Error{
		Kind:       KindServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *Error {
	return &Error{
		Kind:       KindClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a validation error for unrecognized payloads
func NewValidationError(message string) *Error {
	return &Error{
		Kind:      KindValidation,
		Retryable: false,
		Message:   message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *Error {
	return &Error{
		Kind:      KindTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// ClassifyStatus classifies an HTTP status code into an appropriate Error
func ClassifyStatus(statusCode int) *Error {
	switch {
	case statusCode == 429:
		return NewRateLimitError(statusCode)
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &Error{
			Kind:       KindUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// ClassifyTransport classifies a transport-level error. Timeouts are kept
// distinct from generic network failures: a timed-out call must follow the
// failure path, never the rate-limit fallback path.
func ClassifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}

// IsRateLimited reports whether err is a classified rate-limit outcome.
// This is the signal that tells the fallback orchestrator to walk the
// alternate-source chain instead of erroring out.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindRateLimit
}

// IsTimeout reports whether err is a classified timeout.
func IsTimeout(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTimeout
}
