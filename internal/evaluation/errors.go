package evaluation

import "errors"

// Rubric construction errors.
var (
	// ErrNoCriteria indicates a rubric was built without any criterion.
	ErrNoCriteria = errors.New("rubric requires at least one criterion")

	// ErrInvalidWeight indicates a criterion weight that is not positive.
	ErrInvalidWeight = errors.New("criterion weight must be positive")

	// ErrDuplicateCriterion indicates two criteria share a name.
	ErrDuplicateCriterion = errors.New("duplicate criterion name")

	// ErrInvalidThreshold indicates a pass threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("pass threshold must be within [0, 1]")
)

// Scoring errors recorded as evaluator_failed results.
var (
	// ErrInvalidVerdict indicates the judge's reply could not be parsed or
	// violated the verdict schema, even after repair.
	ErrInvalidVerdict = errors.New("invalid judge verdict")

	// ErrScorerPanic indicates the scorer panicked while scoring a response.
	ErrScorerPanic = errors.New("scorer panicked")

	// ErrComparerPanic indicates the comparer panicked while writing a report.
	ErrComparerPanic = errors.New("comparer panicked")

	// ErrNoComparableResponses indicates every response to a prompt failed,
	// leaving nothing to compare.
	ErrNoComparableResponses = errors.New("no successful responses to compare")
)
