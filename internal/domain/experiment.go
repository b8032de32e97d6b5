package domain

import (
	"fmt"
	"slices"
	"time"
)

// Experiment is the top-level aggregate of one run: its inputs, every
// per-pair response and statistic, the run summary, and the evaluation.
//
// The run coordinator produces it, the evaluator returns an evaluated copy,
// and the store freezes it. Notes are stored in a separate artifact and are
// not part of the structured record.
type Experiment struct {
	// ID is assigned when the run starts (or by the store when saving a
	// record that has none) and is stable across reloads.
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Mode    ExecutionMode `json:"mode"`
	Configs []ModelConfig `json:"configs"`
	Prompts PromptSet     `json:"prompts"`

	// Responses and Stats are indexed by pair index (prompt-major).
	Responses []ModelResponse `json:"responses"`
	Stats     []ModelStats    `json:"stats"`
	Summary   RunSummary      `json:"summary"`

	Evaluations []EvaluationResult `json:"evaluations,omitempty"`
	Comparisons []Comparison       `json:"comparisons,omitempty"`

	// Judge names the evaluator configuration used, if any.
	Judge string `json:"judge,omitempty"`

	Notes string `json:"-"`
}

// PairCount returns |Configs| x |Prompts|.
func (e *Experiment) PairCount() int { return len(e.Configs) * len(e.Prompts) }

// Validate checks the structural invariants of a completed run.
func (e *Experiment) Validate() error {
	if err := e.Mode.Validate(); err != nil {
		return err
	}
	want := e.PairCount()
	if want == 0 {
		return fmt.Errorf("%w: experiment has %d configs and %d prompts", ErrPairCountMismatch, len(e.Configs), len(e.Prompts))
	}
	if len(e.Responses) != want || len(e.Stats) != want {
		return fmt.Errorf("%w: want %d, have %d responses and %d stats",
			ErrPairCountMismatch, want, len(e.Responses), len(e.Stats))
	}
	for i := range e.Responses {
		if e.Responses[i].Pair.Index != i || e.Stats[i].Pair.Index != i {
			return fmt.Errorf("%w: slot %d", ErrPairOutOfOrder, i)
		}
		if err := e.Responses[i].Validate(); err != nil {
			return err
		}
	}
	if s := e.Summary; s.SuccessCount+s.FailureCount != s.Total || s.Total != want {
		return fmt.Errorf("%w: summary counts %d+%d != %d", ErrPairCountMismatch, s.SuccessCount, s.FailureCount, want)
	}
	for _, r := range e.Evaluations {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResponsesForPrompt returns the responses of prompt p in model order.
func (e *Experiment) ResponsesForPrompt(p int) []ModelResponse {
	n := len(e.Configs)
	start := p * n
	if p < 0 || start+n > len(e.Responses) {
		return nil
	}
	return slices.Clone(e.Responses[start : start+n])
}

// WithEvaluations returns a copy of e carrying the given evaluation output.
func (e Experiment) WithEvaluations(judge string, results []EvaluationResult, comparisons []Comparison) Experiment {
	e.Judge = judge
	e.Evaluations = slices.Clone(results)
	e.Comparisons = slices.Clone(comparisons)
	return e
}
