package retry

import (
	"sync/atomic"
	"time"
)

// retryStats provides thread-safe retry metrics using atomic operations.
type retryStats struct {
	totalAttempts           atomic.Int64 // Total attempts across all requests
	successfulRetries       atomic.Int64 // Requests that succeeded after retry
	failedRetries           atomic.Int64 // Requests that failed after all retries
	successfulFirstAttempts atomic.Int64 // Requests that succeeded on first attempt
	nonRetryable            atomic.Int64 // Requests that stopped on a non-retryable error
	maxBackoff              atomic.Int64 // Maximum backoff duration in nanoseconds
}

// RetryStats is a snapshot of retry middleware activity.
type RetryStats struct {
	TotalAttempts     int64         `json:"total_attempts"`
	SuccessfulRetries int64         `json:"successful_retries"`
	FailedRetries     int64         `json:"failed_retries"`
	NonRetryable      int64         `json:"non_retryable"`
	AverageAttempts   float64       `json:"average_attempts"`
	MaxBackoff        time.Duration `json:"max_backoff"`
}

// recordBackoffMetrics records backoff duration for monitoring.
func (r *Retrier) recordBackoffMetrics(backoff time.Duration) {
	backoffNanos := backoff.Nanoseconds()
	for {
		current := r.stats.maxBackoff.Load()
		if backoffNanos <= current {
			return
		}
		if r.stats.maxBackoff.CompareAndSwap(current, backoffNanos) {
			return
		}
	}
}

// Stats returns a snapshot of the current retry statistics.
func (r *Retrier) Stats() RetryStats {
	totalAttempts := r.stats.totalAttempts.Load()
	successfulRetries := r.stats.successfulRetries.Load()
	failedRetries := r.stats.failedRetries.Load()
	nonRetryable := r.stats.nonRetryable.Load()
	first := r.stats.successfulFirstAttempts.Load()

	averageAttempts := 1.0
	if totalRequests := first + successfulRetries + failedRetries + nonRetryable; totalRequests > 0 {
		averageAttempts = float64(totalAttempts) / float64(totalRequests)
	}

	return RetryStats{
		TotalAttempts:     totalAttempts,
		SuccessfulRetries: successfulRetries,
		FailedRetries:     failedRetries,
		NonRetryable:      nonRetryable,
		AverageAttempts:   averageAttempts,
		MaxBackoff:        time.Duration(r.stats.maxBackoff.Load()),
	}
}
