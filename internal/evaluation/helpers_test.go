package evaluation_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeJudge is a scripted JudgeClient that records every prompt it sees.
type fakeJudge struct {
	mu      sync.Mutex
	calls   atomic.Int32
	prompts []domain.Prompt
	reply   func(domain.Prompt) (string, error)
}

func (f *fakeJudge) Judge(_ context.Context, _ domain.ModelConfig, p domain.Prompt) (domain.Completion, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()

	content, err := f.reply(p)
	if err != nil {
		return domain.Completion{}, err
	}
	return domain.Completion{Content: content}, nil
}

func replyWith(content string) func(domain.Prompt) (string, error) {
	return func(domain.Prompt) (string, error) { return content, nil }
}

func okResponse(idx, promptIdx int, model, content string) domain.ModelResponse {
	pair := domain.Pair{Index: idx, PromptIndex: promptIdx, ModelID: model}
	return domain.Succeeded(pair, domain.Completion{
		Content: content,
		Latency: 1200 * time.Millisecond,
		Usage:   domain.TokenUsage{Prompt: 5, Completion: 7, Total: 12},
	}, t0, t0.Add(1200*time.Millisecond))
}

func failedResponse(idx, promptIdx int, model string) domain.ModelResponse {
	pair := domain.Pair{Index: idx, PromptIndex: promptIdx, ModelID: model}
	return domain.FailedResponse(pair, domain.Failure{Kind: domain.FailureTimeout, Message: "deadline exceeded"},
		t0, t0.Add(time.Second))
}

// countingScorer records how often it was invoked.
type countingScorer struct {
	calls atomic.Int32
	panic bool
}

func (s *countingScorer) Name() string { return "counting" }

func (s *countingScorer) Score(_ context.Context, _ domain.Prompt, resp domain.ModelResponse) domain.EvaluationResult {
	s.calls.Add(1)
	if s.panic {
		panic("boom")
	}
	return domain.NewScoredResult(resp.Pair, "", 1, "pass", "fine", nil)
}
