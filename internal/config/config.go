// Package config loads the explab configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// EXPLAB_* environment variables (dots become underscores, so
// client.provider.api_key is EXPLAB_CLIENT_PROVIDER_API_KEY).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/evaluation"
	"github.com/ahrav/go-explab/internal/llm/configuration"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Evaluator kinds.
const (
	EvaluatorNone   = "none"
	EvaluatorRubric = "rubric"
	EvaluatorJudge  = "judge"
)

// Config is the full application configuration.
type Config struct {
	Client    configuration.Config `json:"client" yaml:"client" mapstructure:"client"`
	Execution ExecutionConfig      `json:"execution" yaml:"execution" mapstructure:"execution"`
	Models    []domain.ModelConfig `json:"models" yaml:"models" mapstructure:"models"`
	Eval      EvalConfig           `json:"eval" yaml:"eval" mapstructure:"eval"`
	Store     StoreConfig          `json:"store" yaml:"store" mapstructure:"store"`
	Events    EventsConfig         `json:"events" yaml:"events" mapstructure:"events"`
	Metrics   MetricsConfig        `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig            `json:"log" yaml:"log" mapstructure:"log"`
}

// ExecutionConfig controls how a run schedules its pairs.
type ExecutionConfig struct {
	Mode domain.ExecutionMode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// Delay is the pause between pairs in sequential mode.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay" validate:"min=0"`

	// DefaultTimeout bounds calls whose model has no timeout of its own.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout" mapstructure:"default_timeout" validate:"min=0"`

	// MaxConcurrency bounds in-flight calls in parallel mode. 0 is unbounded.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"min=0"`
}

// EvalConfig selects and configures the evaluator.
type EvalConfig struct {
	Evaluator string `json:"evaluator" yaml:"evaluator" mapstructure:"evaluator" validate:"oneof=none rubric judge"`

	// Model is the judge model, used when Evaluator is "judge".
	Model domain.ModelConfig `json:"model" yaml:"model" mapstructure:"model" validate:"-"`

	SystemPrompt           string  `json:"system_prompt,omitempty" yaml:"system_prompt" mapstructure:"system_prompt"`
	ComparisonSystemPrompt string  `json:"comparison_system_prompt,omitempty" yaml:"comparison_system_prompt" mapstructure:"comparison_system_prompt"`
	PassThreshold          float64 `json:"pass_threshold" yaml:"pass_threshold" mapstructure:"pass_threshold" validate:"min=0,max=1"`
	Concurrency            int     `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"min=0"`

	Rubric evaluation.RubricConfig `json:"rubric" yaml:"rubric" mapstructure:"rubric"`
}

// StoreConfig locates persisted experiments.
type StoreConfig struct {
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir" validate:"required"`

	// Cache fronts the store with a Redis read-through cache.
	Cache StoreCacheConfig `json:"cache" yaml:"cache" mapstructure:"cache"`
}

// StoreCacheConfig configures the Redis record cache.
type StoreCacheConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr" validate:"required_if=Enabled true"`
	RedisPassword string        `json:"-" yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl" validate:"min=0"`
}

// EventsConfig mirrors run progress outside the process.
type EventsConfig struct {
	// File appends envelopes as JSON lines when set.
	File string `json:"file,omitempty" yaml:"file" mapstructure:"file"`

	// RedisStream appends envelopes to a Redis stream when set.
	RedisStream string `json:"redis_stream,omitempty" yaml:"redis_stream" mapstructure:"redis_stream"`
	RedisAddr   string `json:"redis_addr,omitempty" yaml:"redis_addr" mapstructure:"redis_addr" validate:"required_with=RedisStream"`
	MaxLen      int64  `json:"max_len" yaml:"max_len" mapstructure:"max_len" validate:"min=0"`
}

// MetricsConfig exposes Prometheus metrics over HTTP while a run executes.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr" mapstructure:"addr"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Execution.Mode.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := domain.ValidateModelConfigs(c.Models); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Eval.Evaluator == EvaluatorJudge {
		if err := c.Eval.Model.Validate(); err != nil {
			return fmt.Errorf("%w: judge: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
