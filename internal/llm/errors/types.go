// Package errors defines the error taxonomy of the model endpoint client.
// Every ordinary call failure is reported as a *CallError whose Kind tells
// the caller how to record it and whether a retry may help.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
)

// Kind categorizes an endpoint call failure. Values match domain.FailureKind
// so a CallError converts to persisted data without a lookup table.
type Kind = domain.FailureKind

const (
	// KindNetwork indicates the request never produced an HTTP response (retryable).
	KindNetwork = domain.FailureNetwork

	// KindHTTPStatus indicates a non-2xx response. Retryable for 408, 429 and 5xx.
	KindHTTPStatus = domain.FailureHTTPStatus

	// KindTimeout indicates the call deadline expired (retryable while the
	// caller's context is still live).
	KindTimeout = domain.FailureTimeout

	// KindMalformed indicates a 2xx response that could not be decoded or
	// carried no completion (non-retryable).
	KindMalformed = domain.FailureMalformed

	// KindCancelled indicates the caller cancelled the call (non-retryable).
	KindCancelled = domain.FailureCancelled

	// KindUnavailable indicates the client refused the call locally, for
	// example because the circuit breaker is open (non-retryable).
	KindUnavailable = domain.FailureUnavailable
)

// Common client errors.
var (
	// ErrCircuitOpen indicates the circuit breaker for an endpoint is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrEmptyCompletion indicates a 2xx response without any choice content.
	ErrEmptyCompletion = errors.New("response contained no completion")

	// ErrCacheMiss indicates the requested item was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrMaxRetriesExceeded indicates maximum retry attempts exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// maxBodyInMessage bounds how much of an error body is kept on a CallError.
const maxBodyInMessage = 2048

// CallError is the single error type returned by the endpoint client for
// ordinary failures. It never signals a programming error.
type CallError struct {
	Kind       Kind   `json:"kind"`
	Model      string `json:"model,omitempty"`
	StatusCode int    `json:"status_code,omitempty"` // Set for KindHTTPStatus.
	Body       string `json:"body,omitempty"`        // Raw error body for KindHTTPStatus, truncated.
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"` // Retry-After header value in seconds.
	Cause      error  `json:"-"`
}

// Error returns a formatted message with kind and status context.
func (e *CallError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *CallError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the failure is transient.
func (e *CallError) IsRetryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusTooManyRequests ||
			e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// GetRetryAfter returns the server-requested delay before the next attempt.
func (e *CallError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// Failure converts the error into the persisted failure description.
func (e *CallError) Failure() domain.Failure {
	return domain.Failure{Kind: e.Kind, StatusCode: e.StatusCode, Message: e.Message}
}

// NewHTTPStatusError builds a KindHTTPStatus error. message is the
// provider-supplied error text if any; otherwise "HTTP <code>: <body>".
func NewHTTPStatusError(code int, body []byte, message string) *CallError {
	b := string(body)
	if len(b) > maxBodyInMessage {
		b = b[:maxBodyInMessage]
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", code, b)
	}
	return &CallError{Kind: KindHTTPStatus, StatusCode: code, Body: b, Message: message}
}

// NewMalformedError builds a KindMalformed error wrapping cause.
func NewMalformedError(cause error) *CallError {
	return &CallError{Kind: KindMalformed, Message: cause.Error(), Cause: cause}
}

// ValidationError captures request validation failures with field context.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error returns the field-specific validation message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}
