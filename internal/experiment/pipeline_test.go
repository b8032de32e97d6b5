package experiment_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/evaluation"
	"github.com/ahrav/go-explab/internal/experiment"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/store"
)

// brokenStore fails every save.
type brokenStore struct{ store.Store }

func (brokenStore) Save(context.Context, *domain.Experiment) (store.Handle, error) {
	return "", fmt.Errorf("%w: disk full", store.ErrWriteFailed)
}

func newRubricEvaluator(t *testing.T) *evaluation.Evaluator {
	t.Helper()
	rubric, err := evaluation.RubricConfig{RequiredTerms: []string{"says"}}.Build()
	require.NoError(t, err)
	return evaluation.New(rubric)
}

func TestPipeline_Execute(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	p := experiment.NewPipeline(experiment.New(&fakeCaller{fn: echo}), newRubricEvaluator(t), fs, nil)
	exp, h, err := p.Execute(ctx, experiment.Plan{
		Name:    "smoke",
		Configs: models("a", "b"),
		Prompts: prompts("p0", "p1"),
		Notes:   "first try",
	})
	require.NoError(t, err)
	assert.Equal(t, store.Handle(exp.ID), h)
	assert.Equal(t, "rubric:default", exp.Judge)
	require.Len(t, exp.Evaluations, 4)
	for _, r := range exp.Evaluations {
		assert.Equal(t, domain.EvaluationScored, r.Status)
	}

	loaded, err := fs.Load(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "smoke", loaded.Name)
	assert.Equal(t, "first try", loaded.Notes)
	assert.Equal(t, exp.Evaluations, loaded.Evaluations)
}

func TestPipeline_CancelledRunIsSavedUnevaluated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	caller := &fakeCaller{fn: func(ctx context.Context, m domain.ModelConfig, pr domain.Prompt) (domain.Completion, error) {
		cancel()
		return echo(ctx, m, pr)
	}}
	p := experiment.NewPipeline(experiment.New(caller), newRubricEvaluator(t), fs, nil)

	exp, h, err := p.Execute(ctx, experiment.Plan{
		Configs: models("a"),
		Prompts: prompts("p0", "p1"),
		Mode:    domain.ModeSequential,
	})
	require.NoError(t, err)
	assert.Empty(t, exp.Evaluations)
	assert.Equal(t, 1, exp.Summary.CancelledCount)

	loaded, err := fs.Load(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, exp.Summary, loaded.Summary)
}

func TestPipeline_RunCancelSkipsEvaluation(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	caller := &fakeCaller{fn: func(ctx context.Context, m domain.ModelConfig, pr domain.Prompt) (domain.Completion, error) {
		if pr.User == "hang" {
			return blockUntilDone(ctx, m, pr)
		}
		return echo(ctx, m, pr)
	}}
	p := experiment.NewPipeline(experiment.New(caller), newRubricEvaluator(t), fs, nil)

	r, err := p.Start(context.Background(), experiment.Plan{
		Configs: models("a"),
		Prompts: prompts("p0", "hang"),
		Mode:    domain.ModeSequential,
	})
	require.NoError(t, err)

	first := <-r.Events()
	_, ok := first.(experiment.ProgressEvent)
	require.True(t, ok)
	r.Cancel()

	exp, h, err := p.Finish(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, r.Cancelled())
	assert.Empty(t, exp.Evaluations)
	assert.Empty(t, exp.Judge)
	assert.Equal(t, 1, exp.Summary.CancelledCount)
	assert.Equal(t, domain.OutcomeCancelled, exp.Responses[1].Outcome)

	loaded, err := fs.Load(context.Background(), h)
	require.NoError(t, err)
	assert.Empty(t, loaded.Evaluations)
}

func TestPipeline_SavedRecordRoundTrips(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	caller := &fakeCaller{fn: func(ctx context.Context, m domain.ModelConfig, pr domain.Prompt) (domain.Completion, error) {
		if m.Name == "b" && pr.User == "p1" {
			return domain.Completion{}, llmerrors.NewHTTPStatusError(503, []byte("busy"), "overloaded")
		}
		return echo(ctx, m, pr)
	}}
	configs := models("a", "b")
	configs[1].Timeout = time.Minute
	p := experiment.NewPipeline(experiment.New(caller), newRubricEvaluator(t), fs, nil)

	exp, h, err := p.Execute(ctx, experiment.Plan{
		Name:    "round-trip",
		Configs: configs,
		Prompts: prompts("p0", "p1"),
		Notes:   "kept",
	})
	require.NoError(t, err)
	assert.False(t, exp.Responses[0].StartedAt.IsZero())
	assert.Equal(t, time.UTC, exp.Responses[0].StartedAt.Location())

	loaded, err := fs.Load(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, *exp, *loaded)
}

func TestPipeline_SaveFailureKeepsExperiment(t *testing.T) {
	p := experiment.NewPipeline(experiment.New(&fakeCaller{fn: echo}), nil, brokenStore{}, nil)

	exp, h, err := p.Execute(context.Background(), experiment.Plan{Configs: models("a"), Prompts: prompts("p0")})
	require.ErrorIs(t, err, store.ErrWriteFailed)
	assert.Empty(t, h)
	require.NotNil(t, exp)
	assert.Equal(t, 1, exp.Summary.SuccessCount)
}

func TestPipeline_WithoutStore(t *testing.T) {
	p := experiment.NewPipeline(experiment.New(&fakeCaller{fn: echo}), nil, nil, nil)

	exp, h, err := p.Execute(context.Background(), experiment.Plan{Configs: models("a"), Prompts: prompts("p0")})
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.Empty(t, exp.Judge)
}

func TestPipeline_InvalidPlan(t *testing.T) {
	p := experiment.NewPipeline(experiment.New(&fakeCaller{fn: echo}), nil, nil, nil)

	exp, _, err := p.Execute(context.Background(), experiment.Plan{Prompts: prompts("p0")})
	require.ErrorIs(t, err, domain.ErrNoModels)
	assert.Nil(t, exp)
}
