package configuration

import (
	"time"
)

// HTTP and connection constants.
const (
	DefaultEndpoint            = "https://api.openai.com/v1"
	DefaultAPIKeyEnv           = "OPENAI_API_KEY"
	DefaultMaxIdleConns        = 100
	DefaultIdleTimeoutSeconds  = 90
	DefaultTLSTimeoutSeconds   = 10
	DefaultHTTPTimeoutSeconds  = 120
	ServerErrorStatusThreshold = 500
)

// Retry and circuit breaker constants.
const (
	DefaultMaxAttempts       = 3
	DefaultMaxElapsedTime    = 45 * time.Second
	DefaultInitialInterval   = 250 * time.Millisecond
	DefaultMaxInterval       = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultHalfOpenRequests  = 1
	DefaultBreakerInterval   = 60 * time.Second
	DefaultOpenTimeout       = 30 * time.Second
	DefaultMinRequests       = 5
	DefaultFailureRatio      = 0.6
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
)

// Cache constants.
const (
	DefaultCacheTTL = 24 * time.Hour
)

// DefaultConfig returns configuration with sensible defaults. Retry, rate
// limiting, and the circuit breaker are on; the Redis cache is off until an
// address is configured.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Provider: ProviderConfig{
			Endpoint:  DefaultEndpoint,
			APIKeyEnv: DefaultAPIKeyEnv,
			VerifySSL: true,
		},
		Retry: RetryConfig{
			Enabled:         true,
			MaxAttempts:     DefaultMaxAttempts,
			MaxElapsedTime:  DefaultMaxElapsedTime,
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
			UseJitter:       true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      true,
			MaxRequests:  DefaultHalfOpenRequests,
			Interval:     DefaultBreakerInterval,
			OpenTimeout:  DefaultOpenTimeout,
			MinRequests:  DefaultMinRequests,
			FailureRatio: DefaultFailureRatio,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     DefaultCacheTTL,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			RedactPrompts:  true,
		},
	}
}
