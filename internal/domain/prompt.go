package domain

import (
	"fmt"
	"strconv"
)

// Prompt is one (system, user) entry of a prompt set.
type Prompt struct {
	// ID is an optional caller-supplied identifier. When empty the prompt is
	// referred to by its position, see PromptSet.Key.
	ID string `json:"id,omitempty" yaml:"id" mapstructure:"id"`

	// System is the system prompt. May be empty.
	System string `json:"system,omitempty" yaml:"system" mapstructure:"system"`

	// User is the user prompt sent to every model.
	User string `json:"user" yaml:"user" mapstructure:"user" validate:"required"`
}

// PromptSet is the ordered sequence of prompts applied uniformly to every
// model in a run. It is immutable for the run's duration.
type PromptSet []Prompt

// Validate checks that the set is non-empty and that every prompt has a
// user message.
func (ps PromptSet) Validate() error {
	if len(ps) == 0 {
		return ErrNoPrompts
	}
	for i, p := range ps {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("%w at index %d: %w", ErrInvalidPrompt, i, err)
		}
	}
	return nil
}

// Key returns the display identifier of prompt i.
func (ps PromptSet) Key(i int) string {
	if i >= 0 && i < len(ps) && ps[i].ID != "" {
		return ps[i].ID
	}
	return "prompt-" + strconv.Itoa(i+1)
}
