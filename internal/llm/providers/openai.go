package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/ahrav/go-explab/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

// OpenAIAdapter implements transport.ProviderAdapter for OpenAI-compatible
// chat/completions endpoints (OpenAI, vLLM, llama.cpp server, Ollama, ...).
// Per-request endpoints override the configured default.
type OpenAIAdapter struct {
	config configuration.ProviderConfig
}

// NewOpenAIAdapter creates an adapter. An empty endpoint defaults to
// OpenAI's production API.
func NewOpenAIAdapter(cfg configuration.ProviderConfig) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = configuration.DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAIAdapter{config: cfg}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string {
	return ProviderOpenAI
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
	TopK        int           `json:"top_k,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Build constructs a chat/completions request. Optional sampling parameters
// are only sent when set so endpoints that reject unknown fields still work.
func (a *OpenAIAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	switch req.Operation {
	case transport.OpCompletion, transport.OpJudge:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, req.Operation)
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
		TopK:        req.Sampling.TopK,
		MaxTokens:   req.Sampling.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := a.baseURL(req.Endpoint) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Raw bytes are re-read by Parse for the persisted exchange record.
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	a.setHeaders(httpReq)
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	return httpReq, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Thinking         string `json:"thinking"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Parse extracts the completion, reasoning trace, and usage from a response.
// Non-2xx statuses become KindHTTPStatus errors; undecodable or empty 2xx
// bodies become KindMalformed.
func (a *OpenAIAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseOpenAIError(httpResp, body)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llmerrors.NewMalformedError(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, llmerrors.NewMalformedError(llmerrors.ErrEmptyCompletion)
	}

	msg := resp.Choices[0].Message
	reasoning := msg.ReasoningContent
	if reasoning == "" {
		reasoning = msg.Thinking
	}

	total := resp.Usage.TotalTokens
	if total == 0 {
		total = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}

	return &transport.Response{
		Content:     msg.Content,
		Reasoning:   reasoning,
		RawRequest:  requestBody(httpResp.Request),
		RawResponse: string(body),
		Usage: transport.NormalizedUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      total,
		},
		Headers: httpResp.Header,
	}, nil
}

// ListModels returns the model identifiers the endpoint advertises. It tries
// /models first and falls back to /models/list.
func (a *OpenAIAdapter) ListModels(ctx context.Context, client *http.Client, endpoint string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	base := a.baseURL(endpoint)

	var lastErr error
	for _, path := range []string{"/models", "/models/list"} {
		ids, err := a.listModelsAt(ctx, client, base+path)
		if err == nil {
			return ids, nil
		}
		if ctx.Err() != nil {
			return nil, llmerrors.Classify(err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrNoModelsEndpoint, lastErr)
}

func (a *OpenAIAdapter) listModelsAt(ctx context.Context, client *http.Client, url string) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(httpReq)

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, parseOpenAIError(httpResp, body)
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, llmerrors.NewMalformedError(fmt.Errorf("failed to parse model list: %w", err))
	}

	ids := make([]string, 0, len(list.Data)+len(list.Models))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	for _, m := range list.Models {
		ids = append(ids, m.Name)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (a *OpenAIAdapter) baseURL(override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return a.config.Endpoint
}

func (a *OpenAIAdapter) setHeaders(httpReq *http.Request) {
	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
}

// requestBody recovers the exact bytes sent for req.
func requestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	rc, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return ""
	}
	return string(b)
}

// parseOpenAIError converts an error response into a KindHTTPStatus error,
// preferring the provider's error.message over the raw body.
func parseOpenAIError(httpResp *http.Response, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	var message string
	if err := json.Unmarshal(body, &errResp); err == nil {
		message = errResp.Error.Message
	}

	callErr := llmerrors.NewHTTPStatusError(httpResp.StatusCode, body, message)
	if ra := httpResp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			callErr.RetryAfter = secs
		}
	}
	return callErr
}

// IsNoModelsEndpoint reports whether err came from an endpoint without a
// model listing route.
func IsNoModelsEndpoint(err error) bool {
	return errors.Is(err, ErrNoModelsEndpoint)
}
