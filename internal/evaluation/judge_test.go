package evaluation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/evaluation"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantScore    float64
		wantRepaired bool
		wantErr      bool
	}{
		{name: "strict", raw: `{"score": 0.8, "reasoning": "clear and correct answer"}`, wantScore: 0.8},
		{name: "zero_score", raw: `{"score": 0, "reasoning": "completely off topic"}`, wantScore: 0},
		{
			name:         "fenced",
			raw:          "```json\n{\"score\": 0.4, \"reasoning\": \"partially correct answer\"}\n```",
			wantScore:    0.4,
			wantRepaired: true,
		},
		{
			name:         "surrounding_prose",
			raw:          "Here you go: {\"score\": 0.9, \"reasoning\": \"excellent coverage\"} hope that helps",
			wantScore:    0.9,
			wantRepaired: true,
		},
		{
			name:         "trailing_comma_unquoted_keys",
			raw:          "{score: 0.6, reasoning: \"mostly right overall\",}",
			wantScore:    0.6,
			wantRepaired: true,
		},
		{
			name:         "single_quotes",
			raw:          "{'score': 0.5, 'reasoning': 'average quality here'}",
			wantScore:    0.5,
			wantRepaired: true,
		},
		{name: "out_of_range", raw: `{"score": 1.5, "reasoning": "very very good"}`, wantErr: true},
		{name: "short_reasoning", raw: `{"score": 0.5, "reasoning": "ok"}`, wantErr: true},
		{name: "missing_score", raw: `{"reasoning": "no score was given"}`, wantErr: true},
		{name: "bad_confidence", raw: `{"score": 0.5, "reasoning": "fine answer here", "confidence": 2}`, wantErr: true},
		{name: "not_json", raw: "I think it is good", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, repaired, err := evaluation.ParseVerdict(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, evaluation.ErrInvalidVerdict)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, v.Score)
			assert.InDelta(t, tt.wantScore, *v.Score, 1e-9)
			assert.Equal(t, tt.wantRepaired, repaired)
		})
	}
}

func TestJudge_Score(t *testing.T) {
	judgeModel := domain.ModelConfig{Name: "judge-model"}
	resp := okResponse(2, 1, "candidate", "Paris is the capital of France.")
	prompt := domain.Prompt{System: "be brief", User: "Capital of France?"}

	tests := []struct {
		name       string
		reply      func(domain.Prompt) (string, error)
		wantStatus domain.EvaluationStatus
		wantLabel  string
		wantScore  float64
	}{
		{
			name:       "scored_pass",
			reply:      replyWith(`{"score": 0.9, "reasoning": "correct and concise", "confidence": 0.8}`),
			wantStatus: domain.EvaluationScored,
			wantLabel:  evaluation.LabelPass,
			wantScore:  0.9,
		},
		{
			name:       "explicit_label",
			reply:      replyWith(`{"score": 0.9, "reasoning": "correct and concise", "label": "excellent"}`),
			wantStatus: domain.EvaluationScored,
			wantLabel:  "excellent",
			wantScore:  0.9,
		},
		{
			name:       "scored_fail",
			reply:      replyWith(`{"score": 0.2, "reasoning": "wrong city named"}`),
			wantStatus: domain.EvaluationScored,
			wantLabel:  evaluation.LabelFail,
			wantScore:  0.2,
		},
		{
			name:       "client_error",
			reply:      func(domain.Prompt) (string, error) { return "", errors.New("http_status (503): down") },
			wantStatus: domain.EvaluationFailed,
		},
		{
			name:       "garbage_reply",
			reply:      replyWith("no idea"),
			wantStatus: domain.EvaluationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeJudge{reply: tt.reply}
			j := evaluation.NewJudge(client, judgeModel)

			got := j.Score(context.Background(), prompt, resp)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, "judge:judge-model", got.Evaluator)
			assert.Equal(t, resp.Pair, got.Pair)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
			require.NoError(t, got.Validate())
			if tt.wantStatus == domain.EvaluationFailed {
				assert.NotEmpty(t, got.Rationale)
			}

			require.Len(t, client.prompts, 1)
			sent := client.prompts[0]
			assert.Equal(t, evaluation.DefaultJudgeSystemPrompt, sent.System)
			assert.Contains(t, sent.User, "Capital of France?")
			assert.Contains(t, sent.User, "Paris is the capital of France.")
		})
	}
}

func TestJudge_Options(t *testing.T) {
	client := &fakeJudge{reply: replyWith(`{"score": 0.6, "reasoning": "acceptable answer"}`)}
	j := evaluation.NewJudge(client, domain.ModelConfig{Name: "j"},
		evaluation.WithJudgeSystemPrompt("custom"),
		evaluation.WithPassThreshold(0.7))

	got := j.Score(context.Background(), domain.Prompt{User: "q"}, okResponse(0, 0, "m", "a"))
	assert.Equal(t, evaluation.LabelFail, got.Label)
	assert.Equal(t, "custom", client.prompts[0].System)
}

func TestComparator(t *testing.T) {
	t.Run("lists_successes_only", func(t *testing.T) {
		client := &fakeJudge{reply: replyWith("1st: a, 2nd: c")}
		c := evaluation.NewComparator(client, domain.ModelConfig{Name: "j"}, "")

		got := c.Compare(context.Background(), 1, domain.Prompt{System: "sys", User: "question"}, []domain.ModelResponse{
			okResponse(3, 1, "a", "answer a"),
			failedResponse(4, 1, "b"),
			okResponse(5, 1, "c", "answer c"),
		})

		assert.Equal(t, 1, got.PromptIndex)
		assert.Equal(t, "1st: a, 2nd: c", got.Report)
		assert.Empty(t, got.Error)

		sent := client.prompts[0]
		assert.Equal(t, evaluation.DefaultComparisonSystemPrompt, sent.System)
		assert.Contains(t, sent.User, "Response 1 (model: a, time: 1.20s, tokens: 12):\nanswer a")
		assert.Contains(t, sent.User, "Response 2 (model: c")
		assert.NotContains(t, sent.User, "model: b")
		assert.Contains(t, sent.User, "worst (2nd place)")
	})

	t.Run("nothing_to_compare", func(t *testing.T) {
		client := &fakeJudge{reply: replyWith("unused")}
		c := evaluation.NewComparator(client, domain.ModelConfig{Name: "j"}, "")

		got := c.Compare(context.Background(), 0, domain.Prompt{User: "q"}, []domain.ModelResponse{failedResponse(0, 0, "a")})
		assert.Equal(t, evaluation.ErrNoComparableResponses.Error(), got.Error)
		assert.Zero(t, client.calls.Load())
	})

	t.Run("judge_error_recorded", func(t *testing.T) {
		client := &fakeJudge{reply: func(domain.Prompt) (string, error) { return "", errors.New("timeout: deadline exceeded") }}
		c := evaluation.NewComparator(client, domain.ModelConfig{Name: "j"}, "")

		got := c.Compare(context.Background(), 0, domain.Prompt{User: "q"}, []domain.ModelResponse{okResponse(0, 0, "a", "x")})
		assert.Equal(t, "timeout: deadline exceeded", got.Error)
		assert.Empty(t, got.Report)
	})
}
