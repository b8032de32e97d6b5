package transport

import (
	"net/http"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
)

// OperationType distinguishes the purpose of a call for caching, metrics,
// and logging.
type OperationType string

const (
	// OpCompletion is a model call issued for one (model, prompt) pair of a run.
	OpCompletion OperationType = "completion"

	// OpJudge is a call issued by a model-judged evaluator.
	OpJudge OperationType = "judge"
)

// Request is the normalized form of one chat completion call.
type Request struct {
	Operation OperationType

	// Model is the model identifier sent to the endpoint.
	Model string

	// Endpoint overrides the adapter's default base URL when set.
	Endpoint string

	SystemPrompt string
	UserPrompt   string
	Sampling     domain.SamplingParams

	// Timeout bounds the HTTP exchange. Zero leaves the caller's context in charge.
	Timeout time.Duration

	// RequestID correlates logs for one logical call across retries.
	RequestID string

	// Cacheable allows the response cache to serve and store this call.
	Cacheable bool
}

// NormalizedUsage reports token counts extracted from a provider response.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the normalized result of a successful call.
type Response struct {
	Content   string          `json:"content"`
	Reasoning string          `json:"reasoning,omitempty"`
	Usage     NormalizedUsage `json:"usage"`

	// RawRequest and RawResponse are the exact bodies exchanged.
	RawRequest  string `json:"raw_request"`
	RawResponse string `json:"raw_response"`

	Headers http.Header   `json:"-"`
	Latency time.Duration `json:"latency"`

	// Cached is set when the response was served from the response cache.
	Cached bool `json:"-"`
}

// Completion converts the response into the domain payload.
func (r *Response) Completion() domain.Completion {
	return domain.Completion{
		Content:     r.Content,
		Reasoning:   r.Reasoning,
		RawRequest:  r.RawRequest,
		RawResponse: r.RawResponse,
		Usage: domain.TokenUsage{
			Prompt:     r.Usage.PromptTokens,
			Completion: r.Usage.CompletionTokens,
			Total:      r.Usage.TotalTokens,
		},
		Latency: r.Latency,
	}
}
