package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/store"
)

// Evaluator judges a finished experiment. *evaluation.Evaluator satisfies it.
type Evaluator interface {
	Name() string
	EvaluateExperiment(ctx context.Context, exp domain.Experiment) domain.Experiment
}

// Pipeline chains a run, its evaluation and persistence.
type Pipeline struct {
	coordinator *Coordinator
	evaluator   Evaluator
	store       store.Store
	logger      *slog.Logger
}

// NewPipeline wires the stages. evaluator and st may be nil to skip
// evaluation or persistence.
func NewPipeline(coordinator *Coordinator, evaluator Evaluator, st store.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		coordinator: coordinator,
		evaluator:   evaluator,
		store:       st,
		logger:      logger.With("component", "pipeline"),
	}
}

// Execute runs plan to completion, evaluates and saves it.
func (p *Pipeline) Execute(ctx context.Context, plan Plan) (*domain.Experiment, store.Handle, error) {
	r, err := p.Start(ctx, plan)
	if err != nil {
		return nil, "", err
	}
	return p.Finish(ctx, r)
}

// Start begins the run. Callers that want progress consume r.Events()
// before calling Finish.
func (p *Pipeline) Start(ctx context.Context, plan Plan) (*Run, error) {
	return p.coordinator.Start(ctx, plan)
}

// Finish waits for r, then evaluates and saves the experiment.
//
// Evaluation is skipped when the run was cancelled or ctx is already
// done. The save is detached
// from ctx so a cancelled run is still persisted. A save failure is
// returned together with the in-memory experiment; with ErrNotesWriteFailed
// the handle is valid as well.
func (p *Pipeline) Finish(ctx context.Context, r *Run) (*domain.Experiment, store.Handle, error) {
	exp := r.Wait()

	if p.evaluator != nil {
		if r.Cancelled() || ctx.Err() != nil {
			p.logger.Info("skipping evaluation of cancelled run", "experiment_id", exp.ID)
		} else {
			evaluated := p.evaluator.EvaluateExperiment(ctx, *exp)
			exp = &evaluated
			p.logger.Info("experiment evaluated",
				"experiment_id", exp.ID,
				"evaluator", p.evaluator.Name(),
				"results", len(exp.Evaluations),
				"comparisons", len(exp.Comparisons))
		}
	}

	if p.store == nil {
		return exp, "", nil
	}
	h, err := p.store.Save(context.WithoutCancel(ctx), exp)
	if err != nil {
		p.logger.Error("failed to save experiment", "experiment_id", exp.ID, "error", err)
		return exp, h, fmt.Errorf("save experiment %s: %w", exp.ID, err)
	}
	return exp, h, nil
}
