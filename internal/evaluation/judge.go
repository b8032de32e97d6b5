package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/go-explab/internal/domain"
)

// JudgeClient is the subset of the endpoint client used by model-judged
// scorers. *llm.HTTPClient satisfies it.
type JudgeClient interface {
	Judge(ctx context.Context, model domain.ModelConfig, prompt domain.Prompt) (domain.Completion, error)
}

// DefaultJudgeSystemPrompt instructs the judge to reply with a verdict object.
const DefaultJudgeSystemPrompt = "You are an expert evaluator. Judge LLM responses fairly and objectively. " +
	"Reply with a single JSON object and nothing else."

// JudgeOption configures a Judge.
type JudgeOption func(*Judge)

// WithJudgeSystemPrompt overrides the system prompt of scoring calls.
func WithJudgeSystemPrompt(s string) JudgeOption {
	return func(j *Judge) {
		if s != "" {
			j.systemPrompt = s
		}
	}
}

// WithPassThreshold sets the score at or above which a verdict without its
// own label is labelled "pass".
func WithPassThreshold(t float64) JudgeOption { return func(j *Judge) { j.threshold = t } }

// WithComparisonSystemPrompt overrides the system prompt of comparison calls.
func WithComparisonSystemPrompt(s string) JudgeOption {
	return func(j *Judge) {
		if s != "" {
			j.comparator.systemPrompt = s
		}
	}
}

// Judge is a model-judged Scorer. It also implements Comparer with the same
// judge model.
type Judge struct {
	client       JudgeClient
	model        domain.ModelConfig
	systemPrompt string
	threshold    float64
	comparator   *Comparator
}

var (
	_ Scorer   = (*Judge)(nil)
	_ Comparer = (*Judge)(nil)
)

// NewJudge creates a judge scorer that calls model through client.
func NewJudge(client JudgeClient, model domain.ModelConfig, opts ...JudgeOption) *Judge {
	j := &Judge{
		client:       client,
		model:        model,
		systemPrompt: DefaultJudgeSystemPrompt,
		threshold:    DefaultPassThreshold,
		comparator:   NewComparator(client, model, ""),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements Scorer.
func (j *Judge) Name() string { return "judge:" + j.model.ID() }

// Score implements Scorer. Client and verdict failures become
// evaluator_failed results.
func (j *Judge) Score(ctx context.Context, prompt domain.Prompt, resp domain.ModelResponse) domain.EvaluationResult {
	c, err := j.client.Judge(ctx, j.model, domain.Prompt{
		System: j.systemPrompt,
		User:   buildScorePrompt(prompt, resp),
	})
	if err != nil {
		return domain.EvaluatorFailure(resp.Pair, j.Name(), fmt.Errorf("judge call failed: %w", err))
	}

	v, _, err := ParseVerdict(c.Content)
	if err != nil {
		return domain.EvaluatorFailure(resp.Pair, j.Name(), err)
	}

	label := v.Label
	if label == "" {
		label = LabelFail
		if *v.Score >= j.threshold {
			label = LabelPass
		}
	}

	var criteria map[string]float64
	if v.Confidence != nil {
		criteria = map[string]float64{"confidence": *v.Confidence}
	}
	return domain.NewScoredResult(resp.Pair, j.Name(), *v.Score, label, strings.TrimSpace(v.Reasoning), criteria)
}

// Compare implements Comparer.
func (j *Judge) Compare(ctx context.Context, promptIndex int, prompt domain.Prompt, responses []domain.ModelResponse) domain.Comparison {
	c := j.comparator.Compare(ctx, promptIndex, prompt, responses)
	c.Evaluator = j.Name()
	return c
}

func buildScorePrompt(prompt domain.Prompt, resp domain.ModelResponse) string {
	var b strings.Builder
	b.WriteString("Evaluate how well the response answers the request.\n\n")
	if prompt.System != "" {
		fmt.Fprintf(&b, "System prompt: %s\n\n", prompt.System)
	}
	fmt.Fprintf(&b, "User prompt: %s\n\n", prompt.User)
	fmt.Fprintf(&b, "Response (model: %s):\n%s\n\n", resp.Pair.ModelID, resp.Content)
	b.WriteString(`Reply with JSON only, in the form:
{"score": <number from 0 to 1>, "reasoning": "<at least one sentence>", "confidence": <number from 0 to 1>}`)
	return b.String()
}
