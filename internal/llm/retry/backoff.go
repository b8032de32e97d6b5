package retry

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-explab/internal/llm/configuration"
)

// calculateBackoff computes the delay before the next attempt. A provider
// Retry-After value takes precedence over exponential backoff.
func (r *Retrier) calculateBackoff(attempt int, err error) time.Duration {
	if retryAfter := extractRetryAfter(err); retryAfter > 0 {
		return retryAfter
	}
	return r.calculatePureExponentialBackoff(attempt)
}

// calculatePureExponentialBackoff computes exponential backoff without considering retry-after headers.
func (r *Retrier) calculatePureExponentialBackoff(attempt int) time.Duration {
	return ExponentialBackoff(attempt, r.config)
}

// extractRetryAfter returns the provider-specified delay carried by err, if any.
func extractRetryAfter(err error) time.Duration {
	var provider RetryAfterProvider
	if errors.As(err, &provider) {
		return provider.GetRetryAfter()
	}
	return 0
}

// ExponentialBackoff calculates retry delays using exponential backoff with jitter.
// Returns zero duration for non-positive attempt numbers.
func ExponentialBackoff(attempt int, config configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := config.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond // Minimum 1ms to prevent hot loop.
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * max(config.Multiplier, 1.0))
		if config.MaxInterval > 0 && backoff > config.MaxInterval {
			backoff = config.MaxInterval
			break
		}
	}

	if config.UseJitter {
		// Full jitter: random between 0 and calculated backoff.
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
		return time.Duration(jitterMs) * time.Millisecond
	}

	return backoff
}
