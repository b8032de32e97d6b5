package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/evaluation"
	"github.com/ahrav/go-explab/internal/experiment"
	"github.com/ahrav/go-explab/internal/llm/configuration"
)

// Defaults for the execution and evaluation sections.
const (
	DefaultMode             = domain.ModeParallel
	DefaultDelay            = time.Second
	DefaultModelTemperature = 0.7
	DefaultJudgeModel       = "gpt-4"
	DefaultJudgeTemperature = 0.3
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultEventsMaxLen     = 10000
)

// DefaultModels are the models queried when the configuration names none.
var DefaultModels = []string{"gpt-4", "gpt-3.5-turbo", "gpt-4o-mini"}

// Dir returns the per-user configuration directory, ~/.config/explab.
func Dir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "explab")
	}
	return ".explab"
}

// DefaultPath returns the configuration file consulted when none is given.
func DefaultPath() string { return filepath.Join(Dir(), "config.yaml") }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	models := make([]domain.ModelConfig, len(DefaultModels))
	for i, name := range DefaultModels {
		models[i] = domain.ModelConfig{
			Name:     name,
			Sampling: domain.SamplingParams{Temperature: DefaultModelTemperature, TopP: 1},
		}
	}

	return &Config{
		Client: *configuration.DefaultConfig(),
		Execution: ExecutionConfig{
			Mode:           DefaultMode,
			Delay:          DefaultDelay,
			DefaultTimeout: experiment.DefaultPairTimeout,
		},
		Models: models,
		Eval: EvalConfig{
			Evaluator: EvaluatorJudge,
			Model: domain.ModelConfig{
				Name:     DefaultJudgeModel,
				Sampling: domain.SamplingParams{Temperature: DefaultJudgeTemperature},
			},
			SystemPrompt:           evaluation.DefaultJudgeSystemPrompt,
			ComparisonSystemPrompt: evaluation.DefaultComparisonSystemPrompt,
			PassThreshold:          evaluation.DefaultPassThreshold,
			Rubric: evaluation.RubricConfig{
				Name:          "default",
				PassThreshold: evaluation.DefaultPassThreshold,
			},
		},
		Store: StoreConfig{
			Dir: filepath.Join(Dir(), "experiments"),
			Cache: StoreCacheConfig{
				TTL: time.Hour,
			},
		},
		Events: EventsConfig{
			MaxLen: DefaultEventsMaxLen,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
