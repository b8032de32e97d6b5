package errors

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Classify converts any error produced while making a call into a *CallError.
// Typed errors are preserved, context errors map to timeout or cancellation,
// network errors are detected by type, and remaining errors fall back to
// message pattern matching. Returns nil for a nil error.
func Classify(err error) *CallError {
	if err == nil {
		return nil
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &CallError{Kind: KindTimeout, Message: "deadline exceeded", Cause: err}
	case errors.Is(err, context.Canceled):
		return &CallError{Kind: KindCancelled, Message: "call cancelled", Cause: err}
	case errors.Is(err, ErrCircuitOpen):
		return &CallError{Kind: KindUnavailable, Message: err.Error(), Cause: err}
	case errors.Is(err, ErrEmptyCompletion):
		return &CallError{Kind: KindMalformed, Message: err.Error(), Cause: err}
	}

	if isTimeout(err) {
		return &CallError{Kind: KindTimeout, Message: err.Error(), Cause: err}
	}
	if isNetworkError(err) {
		return &CallError{Kind: KindNetwork, Message: err.Error(), Cause: err}
	}

	return classifyStringPattern(err)
}

// IsRetryable reports whether err is a transient call failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).IsRetryable()
}

// isTimeout reports net-level timeouts that do not wrap context.DeadlineExceeded.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isNetworkError checks for network failures using type assertions first.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return matchesAny(err.Error(), networkErrorIndicators)
}

// networkErrorIndicators are pre-lowercased message fragments of transport failures.
var networkErrorIndicators = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"eof",
}

// classifyStringPattern handles untyped errors by message.
func classifyStringPattern(err error) *CallError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &CallError{Kind: KindTimeout, Message: err.Error(), Cause: err}
	case strings.Contains(msg, "cancel"):
		return &CallError{Kind: KindCancelled, Message: err.Error(), Cause: err}
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		return &CallError{Kind: KindNetwork, Message: err.Error(), Cause: err}
	default:
		return &CallError{Kind: KindMalformed, Message: err.Error(), Cause: err}
	}
}

func matchesAny(s string, indicators []string) bool {
	lowered := strings.ToLower(s)
	for _, indicator := range indicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}
