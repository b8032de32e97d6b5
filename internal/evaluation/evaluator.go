// Package evaluation scores completed model responses.
//
// An Evaluator drives a pluggable Scorer over every response of a run. Two
// scorers are provided: Rubric, a local deterministic weighted criterion
// set, and Judge, which asks a second model for a JSON verdict. Failed or
// cancelled responses are recorded as not_evaluable without reaching the
// scorer, and scorer failures are recorded as evaluator_failed. Nothing in
// this package aborts a batch.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-explab/internal/domain"
)

// Scorer judges a single successful response.
type Scorer interface {
	// Name identifies the scorer in results, for example "rubric:default".
	Name() string

	// Score returns the result for resp. Implementations report their own
	// failures as evaluator_failed results instead of returning errors.
	Score(ctx context.Context, prompt domain.Prompt, resp domain.ModelResponse) domain.EvaluationResult
}

// Comparer writes one report comparing every response to a prompt.
type Comparer interface {
	Compare(ctx context.Context, promptIndex int, prompt domain.Prompt, responses []domain.ModelResponse) domain.Comparison
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithConcurrency bounds the number of prompts evaluated at once. Values
// below one mean GOMAXPROCS.
func WithConcurrency(n int) Option { return func(e *Evaluator) { e.concurrency = n } }

// WithComparer enables per-prompt comparison reports. A Scorer that also
// implements Comparer is used automatically.
func WithComparer(c Comparer) Option { return func(e *Evaluator) { e.comparer = c } }

// WithLogger sets the evaluator's logger.
func WithLogger(l *slog.Logger) Option { return func(e *Evaluator) { e.logger = l } }

// Evaluator applies a Scorer across the responses of a run.
type Evaluator struct {
	scorer      Scorer
	comparer    Comparer
	concurrency int
	logger      *slog.Logger
}

// New creates an evaluator around scorer.
func New(scorer Scorer, opts ...Option) *Evaluator {
	e := &Evaluator{scorer: scorer}
	if c, ok := scorer.(Comparer); ok {
		e.comparer = c
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = runtime.GOMAXPROCS(0)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "evaluator", "scorer", scorer.Name())
	return e
}

// Name returns the scorer name recorded on results.
func (e *Evaluator) Name() string { return e.scorer.Name() }

// Evaluate scores the responses to one prompt, returning one result per
// response in input order.
func (e *Evaluator) Evaluate(ctx context.Context, prompt domain.Prompt, responses []domain.ModelResponse) []domain.EvaluationResult {
	results := make([]domain.EvaluationResult, len(responses))
	for i, resp := range responses {
		if resp.Outcome != domain.OutcomeSucceeded {
			results[i] = domain.NotEvaluable(resp, e.scorer.Name())
			continue
		}
		results[i] = e.score(ctx, prompt, resp)
	}
	return results
}

func (e *Evaluator) score(ctx context.Context, prompt domain.Prompt, resp domain.ModelResponse) (result domain.EvaluationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scorer panicked", "pair_index", resp.Pair.Index, "panic", r)
			result = domain.EvaluatorFailure(resp.Pair, e.scorer.Name(), fmt.Errorf("%w: %v", ErrScorerPanic, r))
		}
	}()

	result = e.scorer.Score(ctx, prompt, resp)
	result.Pair = resp.Pair
	if result.Evaluator == "" {
		result.Evaluator = e.scorer.Name()
	}
	if result.Status == domain.EvaluationFailed {
		e.logger.Warn("evaluation failed",
			"pair_index", resp.Pair.Index,
			"model", resp.Pair.ModelID,
			"error", result.Rationale)
	}
	return result
}

func (e *Evaluator) compare(ctx context.Context, p int, prompt domain.Prompt, responses []domain.ModelResponse) (c domain.Comparison) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("comparer panicked", "prompt_index", p, "panic", r)
			c = domain.Comparison{
				PromptIndex: p,
				Evaluator:   e.scorer.Name(),
				Error:       fmt.Errorf("%w: %v", ErrComparerPanic, r).Error(),
			}
		}
	}()
	return e.comparer.Compare(ctx, p, prompt, responses)
}

// EvaluateExperiment evaluates every prompt of exp concurrently and returns
// a copy of exp carrying the results in pair order. Each prompt writes
// only its own slot.
func (e *Evaluator) EvaluateExperiment(ctx context.Context, exp domain.Experiment) domain.Experiment {
	numPrompts := len(exp.Prompts)
	perPrompt := make([][]domain.EvaluationResult, numPrompts)
	var comparisons []domain.Comparison
	if e.comparer != nil {
		comparisons = make([]domain.Comparison, numPrompts)
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for p := range numPrompts {
		g.Go(func() error {
			responses := exp.ResponsesForPrompt(p)
			perPrompt[p] = e.Evaluate(ctx, exp.Prompts[p], responses)
			if e.comparer != nil {
				comparisons[p] = e.compare(ctx, p, exp.Prompts[p], responses)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	results := make([]domain.EvaluationResult, 0, len(exp.Responses))
	for _, r := range perPrompt {
		results = append(results, r...)
	}

	e.logger.Info("evaluation completed",
		"experiment_id", exp.ID,
		"prompts", numPrompts,
		"results", len(results))
	return exp.WithEvaluations(e.scorer.Name(), results, comparisons)
}
