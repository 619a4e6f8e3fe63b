package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrProviderNotFound indicates the provider id is not in the registry
	ErrProviderNotFound = errors.New("provider not found")

	// ErrEmptyResponse indicates the remote returned no usable content
	ErrEmptyResponse = errors.New("provider returned empty response")
)

// ErrorKind classifies provider failures for recovery decisions
type ErrorKind string

const (
	// ErrorKindTransport is a network-level failure (DNS, connect, 5xx)
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindRateLimited means the remote rejected with a quota/rate error
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindTimeout means the call exceeded its deadline
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindInvalidResponse means the remote answered with something unusable
	ErrorKindInvalidResponse ErrorKind = "invalid_response"
	// ErrorKindAuth means credentials were rejected
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindCancelled means the caller cancelled the request
	ErrorKindCancelled ErrorKind = "cancelled"
)

// retryable reports whether failures of this kind are worth retrying
// against a different provider or model.
func (k ErrorKind) retryable() bool {
	switch k {
	case ErrorKindTransport, ErrorKindRateLimited, ErrorKindTimeout:
		return true
	default:
		return false
	}
}

// Error wraps a provider failure with its classification. The hedge
// manager and health monitor branch on Kind/Retryable, never on message
// text.
type Error struct {
	Provider   string
	Kind       ErrorKind
	Retryable  bool
	StatusCode int // 0 when not an HTTP status failure
	Message    string
	Err        error
}

// Error returns the formatted error message
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error. Retryable is derived
// from the kind.
func NewError(providerID string, kind ErrorKind, message string, err error) *Error {
	return &Error{
		Provider:  providerID,
		Kind:      kind,
		Retryable: kind.retryable(),
		Message:   message,
		Err:       err,
	}
}

// statusError maps an HTTP response status to a classified error.
func statusError(providerID string, status int, body string) *Error {
	var kind ErrorKind
	switch {
	case status == 401 || status == 403:
		kind = ErrorKindAuth
	case status == 408:
		kind = ErrorKindTimeout
	case status == 429:
		kind = ErrorKindRateLimited
	case status >= 500:
		kind = ErrorKindTransport
	default:
		kind = ErrorKindInvalidResponse
	}
	e := NewError(providerID, kind, truncateBody(body), nil)
	e.StatusCode = status
	return e
}

// Classify wraps an arbitrary error from a provider call into a typed
// Error. Context cancellation and deadline expiry take precedence over
// whatever the transport reported.
func Classify(ctx context.Context, providerID string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	switch {
	case ctx.Err() == context.Canceled || errors.Is(err, context.Canceled):
		return NewError(providerID, ErrorKindCancelled, "request cancelled", err)
	case ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded):
		return NewError(providerID, ErrorKindTimeout, "request deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(providerID, ErrorKindTimeout, "network timeout", err)
		}
		return NewError(providerID, ErrorKindTransport, "network error", err)
	}
	return NewError(providerID, ErrorKindTransport, err.Error(), err)
}

// IsRetryable reports whether err is a provider error worth retrying
// elsewhere. Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}

// KindOf returns the classification of err, or empty when err is not a
// provider error.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// IsCancelled reports whether err represents caller cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == ErrorKindCancelled || errors.Is(err, context.Canceled)
}

func truncateBody(body string) string {
	const max = 512
	if len(body) > max {
		return body[:max] + "..."
	}
	return body
}
