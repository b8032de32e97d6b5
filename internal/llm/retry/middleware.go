// Package retry provides the retry middleware of the endpoint client.
// Transient failures (network errors, timeouts, 408/429/5xx) are retried with
// exponential backoff and full jitter; provider Retry-After guidance is
// honored when it fits the elapsed-time budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-explab/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

var (
	// Runtime errors.
	errContextCancelledBeforeRetry = errors.New("context cancelled before retry")
	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
	errAllRetriesExhausted         = errors.New("all retries exhausted")
)

// RetryAfterProvider defines an interface for error types that can provide
// a specific duration to wait before retrying.
type RetryAfterProvider interface {
	// GetRetryAfter returns the recommended duration to wait before the next attempt.
	// If no specific duration is available, it should return zero.
	GetRetryAfter() time.Duration
}

// Retrier implements retry logic with exponential backoff and keeps
// counters of its activity.
type Retrier struct {
	config configuration.RetryConfig
	logger *slog.Logger
	stats  *retryStats
}

// New validates cfg and creates a Retrier.
func New(cfg configuration.RetryConfig) (*Retrier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Retrier{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		stats:  &retryStats{},
	}, nil
}

// Middleware returns the retry middleware function.
func (r *Retrier) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			return r.do(ctx, next, req)
		})
	}
}

func (r *Retrier) do(ctx context.Context, next transport.Handler, req *transport.Request) (*transport.Response, error) {
	// Fail fast if context is already cancelled to avoid wasted attempts.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errContextCancelledBeforeRetry, err)
	}

	var lastErr error
	startTime := time.Now()
	maxAttempts := r.config.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := next.Handle(ctx, req)
		r.stats.totalAttempts.Add(1)

		if err == nil {
			if attempt > 1 {
				r.stats.successfulRetries.Add(1)
				r.logger.Info("request succeeded after retry",
					"attempt", attempt,
					"model", req.Model,
					"request_id", req.RequestID)
			} else {
				r.stats.successfulFirstAttempts.Add(1)
			}
			return resp, nil
		}

		// The caller's deadline or cancellation ends the loop; another
		// attempt would fail the same way.
		if ctx.Err() != nil || !isRetryable(err) {
			r.stats.nonRetryable.Add(1)
			r.logger.Debug("non-retryable error",
				"error", err,
				"attempt", attempt,
				"model", req.Model)
			return nil, err
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		backoff := r.calculateBackoff(attempt, err)
		if r.config.MaxElapsedTime > 0 {
			elapsed := time.Since(startTime)
			if elapsed+backoff > r.config.MaxElapsedTime {
				// Provider guidance may exceed the budget; fall back to pure
				// exponential backoff before giving up.
				backoff = r.calculatePureExponentialBackoff(attempt)
				if elapsed+backoff > r.config.MaxElapsedTime {
					r.logger.Warn("max elapsed time exceeded",
						"elapsed", elapsed,
						"attempts", attempt,
						"last_error", err)
					break
				}
			}
		}
		r.recordBackoffMetrics(backoff)

		r.logger.Debug("retrying after backoff",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
			"model", req.Model)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", errContextCancelledDuringRetry, ctx.Err())
		}
	}

	r.stats.failedRetries.Add(1)
	return nil, fmt.Errorf("%w: %w: %w", errAllRetriesExhausted, llmerrors.ErrMaxRetriesExceeded, lastErr)
}

// isRetryable defers to the client error taxonomy. Errors outside it fall
// back to Classify so raw network errors from custom handlers still retry.
func isRetryable(err error) bool {
	if errors.Is(err, llmerrors.ErrCircuitOpen) {
		return false
	}
	var callErr *llmerrors.CallError
	if errors.As(err, &callErr) {
		return callErr.IsRetryable()
	}
	return llmerrors.IsRetryable(err)
}
