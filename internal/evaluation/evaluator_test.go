package evaluation_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/evaluation"
)

func TestEvaluate_FailedResponsesNotEvaluable(t *testing.T) {
	scorer := &countingScorer{}
	e := evaluation.New(scorer)

	results := e.Evaluate(context.Background(), domain.Prompt{User: "q"}, []domain.ModelResponse{
		okResponse(0, 0, "a", "fine"),
		failedResponse(1, 0, "b"),
		domain.CancelledResponse(domain.Pair{Index: 2, ModelID: "c"}, "", t0),
	})

	require.Len(t, results, 3)
	assert.Equal(t, int32(1), scorer.calls.Load())

	assert.Equal(t, domain.EvaluationScored, results[0].Status)
	assert.Equal(t, "counting", results[0].Evaluator, "scorer name filled in")

	assert.Equal(t, domain.EvaluationNotEvaluable, results[1].Status)
	assert.Contains(t, results[1].Rationale, "timeout")
	assert.Equal(t, 1, results[1].Pair.Index)

	assert.Equal(t, domain.EvaluationNotEvaluable, results[2].Status)
	assert.Contains(t, results[2].Rationale, "cancelled")
}

func TestEvaluate_ScorerPanicRecorded(t *testing.T) {
	e := evaluation.New(&countingScorer{panic: true})

	results := e.Evaluate(context.Background(), domain.Prompt{User: "q"}, []domain.ModelResponse{
		okResponse(0, 0, "a", "x"),
		okResponse(1, 0, "b", "y"),
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.EvaluationFailed, r.Status)
		assert.Contains(t, r.Rationale, evaluation.ErrScorerPanic.Error())
	}
}

func twoByTwoExperiment() domain.Experiment {
	return domain.Experiment{
		ID:      "exp-1",
		Mode:    domain.ModeParallel,
		Configs: []domain.ModelConfig{{Name: "a"}, {Name: "b"}},
		Prompts: domain.PromptSet{{User: "first question"}, {User: "second question"}},
		Responses: []domain.ModelResponse{
			okResponse(0, 0, "a", "a1"),
			failedResponse(1, 0, "b"),
			okResponse(2, 1, "a", "a2"),
			okResponse(3, 1, "b", "b2"),
		},
	}
}

func TestEvaluateExperiment(t *testing.T) {
	client := &fakeJudge{reply: func(p domain.Prompt) (string, error) {
		if strings.Contains(p.User, "Compare the following") {
			return "ranking report", nil
		}
		return `{"score": 0.75, "reasoning": "reasonable answer"}`, nil
	}}
	e := evaluation.New(evaluation.NewJudge(client, domain.ModelConfig{Name: "j"}), evaluation.WithConcurrency(2))

	exp := twoByTwoExperiment()
	got := e.EvaluateExperiment(context.Background(), exp)

	assert.Empty(t, exp.Evaluations, "input is not mutated")
	assert.Equal(t, "judge:j", got.Judge)

	require.Len(t, got.Evaluations, 4)
	for i, r := range got.Evaluations {
		assert.Equal(t, i, r.Pair.Index, "results are in pair order")
	}
	assert.Equal(t, domain.EvaluationScored, got.Evaluations[0].Status)
	assert.Equal(t, domain.EvaluationNotEvaluable, got.Evaluations[1].Status)
	assert.InDelta(t, 0.75, got.Evaluations[3].Score, 1e-9)

	require.Len(t, got.Comparisons, 2)
	for p, c := range got.Comparisons {
		assert.Equal(t, p, c.PromptIndex)
		assert.Equal(t, "ranking report", c.Report)
		assert.Equal(t, "judge:j", c.Evaluator)
	}

	// Three scoring calls and two comparison calls.
	assert.Equal(t, int32(5), client.calls.Load())
}

func TestEvaluateExperiment_RubricHasNoComparisons(t *testing.T) {
	r, err := evaluation.NewRubric("basic", 0.5, evaluation.Weighted(evaluation.NonEmpty(), 1))
	require.NoError(t, err)

	got := evaluation.New(r).EvaluateExperiment(context.Background(), twoByTwoExperiment())
	require.Len(t, got.Evaluations, 4)
	assert.Nil(t, got.Comparisons)
	assert.Equal(t, "rubric:basic", got.Judge)
}

func TestEvaluateExperiment_ExplicitComparer(t *testing.T) {
	r, err := evaluation.NewRubric("basic", 0.5, evaluation.Weighted(evaluation.NonEmpty(), 1))
	require.NoError(t, err)

	client := &fakeJudge{reply: replyWith("report")}
	e := evaluation.New(r, evaluation.WithComparer(evaluation.NewComparator(client, domain.ModelConfig{Name: "j"}, "")))

	got := e.EvaluateExperiment(context.Background(), twoByTwoExperiment())
	require.Len(t, got.Comparisons, 2)
	assert.Equal(t, "compare:j", got.Comparisons[0].Evaluator)
}

// panickyComparer fails on the first prompt only.
type panickyComparer struct{}

func (panickyComparer) Compare(_ context.Context, p int, _ domain.Prompt, _ []domain.ModelResponse) domain.Comparison {
	if p == 0 {
		panic("comparison exploded")
	}
	return domain.Comparison{PromptIndex: p, Evaluator: "compare:stub", Report: "fine"}
}

func TestEvaluateExperiment_ComparerPanicRecorded(t *testing.T) {
	r, err := evaluation.NewRubric("basic", 0.5, evaluation.Weighted(evaluation.NonEmpty(), 1))
	require.NoError(t, err)

	got := evaluation.New(r, evaluation.WithComparer(panickyComparer{})).
		EvaluateExperiment(context.Background(), twoByTwoExperiment())

	require.Len(t, got.Evaluations, 4)
	require.Len(t, got.Comparisons, 2)
	assert.Equal(t, 0, got.Comparisons[0].PromptIndex)
	assert.Contains(t, got.Comparisons[0].Error, "comparer panicked: comparison exploded")
	assert.Empty(t, got.Comparisons[0].Report)
	assert.Equal(t, "fine", got.Comparisons[1].Report)
}
