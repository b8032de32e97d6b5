// Package configuration holds the settings of the model endpoint client:
// provider credentials, HTTP behavior, and the resilience middleware
// (retry, circuit breaker, rate limit, response cache, observability).
package configuration

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the full configuration of the endpoint client.
type Config struct {
	// HTTPTimeout is the transport-level ceiling for a single HTTP exchange.
	// Per-model timeouts are applied on top through the request context.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" mapstructure:"http_timeout" validate:"min=0"`
	HTTPClient  *http.Client  `json:"-" yaml:"-" mapstructure:"-"`

	Provider       ProviderConfig       `json:"provider" yaml:"provider" mapstructure:"provider"`
	Retry          RetryConfig          `json:"retry" yaml:"retry" mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache          CacheConfig          `json:"cache" yaml:"cache" mapstructure:"cache"`
	Observability  ObservabilityConfig  `json:"observability" yaml:"observability" mapstructure:"observability"`
}

// ProviderConfig holds the default OpenAI-compatible endpoint and credentials.
// Individual models may override Endpoint.
type ProviderConfig struct {
	Endpoint  string            `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint" validate:"required,url"`
	APIKey    string            `json:"-" yaml:"api_key" mapstructure:"api_key"` // Sensitive, not serialized to JSON
	APIKeyEnv string            `json:"api_key_env" yaml:"api_key_env" mapstructure:"api_key_env"`
	VerifySSL bool              `json:"verify_ssl" yaml:"verify_ssl" mapstructure:"verify_ssl"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers" mapstructure:"headers"`
}

// RetryConfig controls retry behavior for failed calls.
// Implements exponential backoff with optional full jitter.
type RetryConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`             // Total attempts including the first
	MaxElapsedTime  time.Duration `json:"max_elapsed_time" yaml:"max_elapsed_time" mapstructure:"max_elapsed_time"` // Total time budget for all attempts
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" mapstructure:"initial_interval"` // Starting backoff duration
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" mapstructure:"max_interval"`             // Maximum backoff duration
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`                   // Exponential backoff multiplier
	UseJitter       bool          `json:"use_jitter" yaml:"use_jitter" mapstructure:"use_jitter"`                   // Enable full jitter randomization
}

// CircuitBreakerConfig controls the per endpoint/model breaker.
type CircuitBreakerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`

	// Interval is the cyclic period of the closed state for clearing counts.
	// Zero never clears.
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout" mapstructure:"open_timeout"`

	// MinRequests is the request count below which the breaker never trips.
	MinRequests uint32 `json:"min_requests" yaml:"min_requests" mapstructure:"min_requests"`

	// FailureRatio trips the breaker once reached (0.0-1.0).
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio" validate:"min=0,max=1"`
}

// RateLimitConfig controls the in-memory token bucket applied per endpoint.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second" yaml:"tokens_per_second" mapstructure:"tokens_per_second" validate:"min=0"`
	BurstSize       int     `json:"burst_size" yaml:"burst_size" mapstructure:"burst_size" validate:"min=0"`
}

// CacheConfig controls Redis-based response caching for deterministic calls.
type CacheConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `json:"-" yaml:"redis_password" mapstructure:"redis_password"` // Sensitive field excluded from JSON.
	RedisDB       int           `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`
}

// ObservabilityConfig controls request logging and metrics.
type ObservabilityConfig struct {
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
	RedactPrompts  bool `json:"redact_prompts" yaml:"redact_prompts" mapstructure:"redact_prompts"`
}

// Validate checks field constraints and cross-field consistency of enabled
// middleware.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client configuration: %w", err)
	}
	if c.Retry.Enabled {
		if err := c.Retry.Validate(); err != nil {
			return err
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.TokensPerSecond <= 0 || c.RateLimit.BurstSize <= 0) {
		return fmt.Errorf("rate limit requires positive tokens_per_second and burst_size, got %v/%d",
			c.RateLimit.TokensPerSecond, c.RateLimit.BurstSize)
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache enabled without redis_addr")
	}
	return nil
}

// Validate checks retry parameters.
func (r RetryConfig) Validate() error {
	switch {
	case r.MaxAttempts <= 0:
		return fmt.Errorf("retry max_attempts must be greater than 0, got %d", r.MaxAttempts)
	case r.InitialInterval <= 0:
		return fmt.Errorf("retry initial_interval must be greater than 0, got %v", r.InitialInterval)
	case r.MaxInterval < r.InitialInterval:
		return fmt.Errorf("retry max_interval must be >= initial_interval, got %v < %v", r.MaxInterval, r.InitialInterval)
	case r.Multiplier < 1.0:
		return fmt.Errorf("retry multiplier must be >= 1.0, got %f", r.Multiplier)
	case r.MaxElapsedTime < 0:
		return fmt.Errorf("retry max_elapsed_time must be >= 0, got %v", r.MaxElapsedTime)
	}
	return nil
}
