// Package domain defines the value types shared by the experiment engine:
// model configurations, prompt sets, per-pair responses and statistics,
// evaluation results, and the Experiment aggregate that is persisted.
//
// Values are treated as immutable once a stage hands them on. Stages that
// need to change an Experiment return a modified copy instead.
package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidEvaluation indicates an evaluation result with inconsistent fields.
var ErrInvalidEvaluation = errors.New("invalid evaluation result")

// EvaluationStatus is the tagged state of an EvaluationResult.
type EvaluationStatus string

const (
	// EvaluationScored means the scorer produced a score for the response.
	EvaluationScored EvaluationStatus = "scored"

	// EvaluationNotEvaluable means the response itself failed or was
	// cancelled, so there was nothing to score.
	EvaluationNotEvaluable EvaluationStatus = "not_evaluable"

	// EvaluationFailed means the scorer could not produce a score, for
	// example because a judge call failed.
	EvaluationFailed EvaluationStatus = "evaluator_failed"
)

// EvaluationResult is the judgment of one pair.
type EvaluationResult struct {
	Pair      Pair             `json:"pair"`
	Evaluator string           `json:"evaluator"`
	Status    EvaluationStatus `json:"status"`

	// Score is normalized to [0, 1]. Zero unless Status is scored.
	Score float64 `json:"score"`

	// Label is an optional categorical verdict such as "pass" or "fail".
	Label string `json:"label,omitempty"`

	// Rationale explains the score, or why no score was produced.
	Rationale string `json:"rationale,omitempty"`

	// Criteria holds per-criterion scores for rubric-based evaluators.
	Criteria map[string]float64 `json:"criteria,omitempty"`
}

// NewScoredResult builds a scored result, clamping score into [0, 1] and
// copying the criteria map.
func NewScoredResult(pair Pair, evaluator string, score float64, label, rationale string, criteria map[string]float64) EvaluationResult {
	return EvaluationResult{
		Pair:      pair,
		Evaluator: evaluator,
		Status:    EvaluationScored,
		Score:     clamp01(score),
		Label:     label,
		Rationale: rationale,
		Criteria:  cloneScores(criteria),
	}
}

// NotEvaluable builds the result recorded for a failed or cancelled response.
func NotEvaluable(resp ModelResponse, evaluator string) EvaluationResult {
	reason := "response did not succeed"
	if resp.Failure != nil {
		reason = "response " + string(resp.Outcome) + ": " + resp.Failure.Error()
	}
	return EvaluationResult{
		Pair:      resp.Pair,
		Evaluator: evaluator,
		Status:    EvaluationNotEvaluable,
		Rationale: reason,
	}
}

// EvaluatorFailure builds the result recorded when the scorer itself fails.
func EvaluatorFailure(pair Pair, evaluator string, err error) EvaluationResult {
	return EvaluationResult{
		Pair:      pair,
		Evaluator: evaluator,
		Status:    EvaluationFailed,
		Rationale: err.Error(),
	}
}

// Validate checks status-dependent constraints.
func (r EvaluationResult) Validate() error {
	switch r.Status {
	case EvaluationScored:
		if r.Score < 0 || r.Score > 1 {
			return fmt.Errorf("%w: score %f outside [0,1]", ErrInvalidEvaluation, r.Score)
		}
	case EvaluationNotEvaluable, EvaluationFailed:
		if r.Score != 0 {
			return fmt.Errorf("%w: %s result carries score %f", ErrInvalidEvaluation, r.Status, r.Score)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvaluation, r.Status)
	}
	return nil
}

// Comparison is a judge-written report comparing every response to one prompt.
type Comparison struct {
	PromptIndex int    `json:"prompt_index"`
	Evaluator   string `json:"evaluator"`
	Report      string `json:"report,omitempty"`
	Error       string `json:"error,omitempty"`
}
