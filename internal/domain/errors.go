package domain

import "errors"

// Configuration errors returned before a run starts. These are the only
// conditions that fail fast; every per-pair failure is reported as data.
var (
	// ErrNoModels indicates that a run was requested with an empty model list.
	ErrNoModels = errors.New("at least one model configuration is required")

	// ErrNoPrompts indicates that a run was requested with an empty prompt set.
	ErrNoPrompts = errors.New("at least one prompt is required")

	// ErrInvalidMode indicates an execution mode other than parallel or sequential.
	ErrInvalidMode = errors.New("invalid execution mode")

	// ErrDuplicateModel indicates two model configurations share the same identity.
	ErrDuplicateModel = errors.New("duplicate model identity")

	// ErrInvalidModelConfig indicates a model configuration failed validation.
	ErrInvalidModelConfig = errors.New("invalid model configuration")

	// ErrInvalidPrompt indicates a prompt failed validation.
	ErrInvalidPrompt = errors.New("invalid prompt")
)

// Record errors reported when an experiment does not satisfy its structural
// invariants.
var (
	// ErrPairCountMismatch indicates the number of stats or responses differs
	// from |configs| x |prompts|.
	ErrPairCountMismatch = errors.New("pair count does not match configs x prompts")

	// ErrPairOutOfOrder indicates a response or stat is not at its pair index.
	ErrPairOutOfOrder = errors.New("pair index out of order")

	// ErrInvalidResponse indicates a terminal response violates the
	// content-xor-failure rule.
	ErrInvalidResponse = errors.New("invalid model response")
)
