package domain

import (
	"fmt"
	"time"
)

// ExecutionMode selects how the pairs of a run are scheduled.
type ExecutionMode string

const (
	// ModeParallel starts one task per (model, prompt) pair and waits for all.
	ModeParallel ExecutionMode = "parallel"

	// ModeSequential processes pairs one at a time in prompt-major order:
	// the outer loop walks prompts, the inner loop walks models.
	ModeSequential ExecutionMode = "sequential"
)

// Validate reports whether m is a known execution mode.
func (m ExecutionMode) Validate() error {
	switch m {
	case ModeParallel, ModeSequential:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
	}
}

// SamplingParams are the generation parameters sent with every call for a
// model. Zero values mean "use the endpoint default" except Temperature,
// which is always sent.
type SamplingParams struct {
	// Temperature controls randomness. Range 0.0-2.0.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`

	// TopP is the nucleus sampling cutoff. Range 0.0-1.0, 0 leaves it unset.
	TopP float64 `json:"top_p,omitempty" yaml:"top_p" mapstructure:"top_p" validate:"min=0,max=1"`

	// TopK limits sampling to the K most likely tokens. Only sent when > 0.
	TopK int `json:"top_k,omitempty" yaml:"top_k" mapstructure:"top_k"`

	// MaxTokens caps the completion length. Only sent when > 0.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens" mapstructure:"max_tokens" validate:"min=0"`
}

// ModelConfig identifies one backend queried by a run.
// It is immutable once a run starts and is shared, never copied, by workers.
type ModelConfig struct {
	// Name is the model identifier sent to the endpoint.
	Name string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`

	// Label optionally overrides Name as the identity of this configuration,
	// allowing the same model to appear twice with different parameters.
	Label string `json:"label,omitempty" yaml:"label" mapstructure:"label"`

	// Endpoint overrides the default API base URL for this model.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`

	// Sampling holds the generation parameters.
	Sampling SamplingParams `json:"sampling" yaml:"sampling" mapstructure:"sampling"`

	// Timeout bounds a single call. Zero defers to the coordinator default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout" mapstructure:"timeout" validate:"min=0"`
}

// ID returns the identity of the configuration within a run.
func (c ModelConfig) ID() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// Validate checks field constraints.
func (c ModelConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidModelConfig, c.ID(), err)
	}
	return nil
}

// ValidateModelConfigs checks a configuration list for a run: it must be
// non-empty, each entry valid, and identities unique.
func ValidateModelConfigs(configs []ModelConfig) error {
	if len(configs) == 0 {
		return ErrNoModels
	}
	seen := make(map[string]struct{}, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.ID()]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateModel, c.ID())
		}
		seen[c.ID()] = struct{}{}
	}
	return nil
}
