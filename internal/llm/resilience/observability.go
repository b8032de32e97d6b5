// Package resilience provides the observability layer of the endpoint
// client: a logging middleware that records every logical call with
// structured fields and feeds a Metrics sink.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-explab/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

// ContentTruncationLimit is the maximum number of response characters
// included in logs when prompts are not redacted.
const ContentTruncationLimit = 200

// Metric names emitted by the logging middleware.
const (
	MetricRequestsTotal    = "llm.requests.total"
	MetricRequestsSuccess  = "llm.requests.success"
	MetricRequestsErrors   = "llm.requests.errors"
	MetricRequestDuration  = "llm.request.duration_ms"
	MetricTokensPrompt     = "llm.tokens.prompt"
	MetricTokensCompletion = "llm.tokens.completion"
	MetricTokensTotal      = "llm.tokens.total"
	MetricCacheHits        = "llm.cache.hits"
	MetricBreakerState     = "llm.circuit_breaker.state"
)

// Metrics provides an interface for collecting observability data from
// endpoint calls.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics discards all data.
type NoOpMetrics struct{}

// NewNoOpMetrics returns a new no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// LoggingMiddleware logs the lifecycle of each logical call and records
// request, error, latency, and token metrics. Prompt text is redacted to
// lengths unless configured otherwise.
type LoggingMiddleware struct {
	logger        *slog.Logger
	metrics       Metrics
	redactPrompts bool
}

// NewLoggingMiddleware creates a transport.Middleware for observability.
// A nil logger or metrics sink falls back to the default logger and a no-op
// sink.
func NewLoggingMiddleware(config configuration.ObservabilityConfig, logger *slog.Logger, metrics Metrics) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	lm := &LoggingMiddleware{
		logger:        logger.With("component", "llm"),
		metrics:       metrics,
		redactPrompts: config.RedactPrompts,
	}
	return lm.Middleware()
}

// Middleware returns the middleware function. Requests without a RequestID
// get one so retries of the same call share it in logs.
func (m *LoggingMiddleware) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.RequestID == "" {
				req.RequestID = uuid.New().String()
			}

			baseTags := map[string]string{
				"model":     req.Model,
				"operation": string(req.Operation),
			}

			m.logRequest(req)
			m.metrics.IncrementCounter(MetricRequestsTotal, baseTags, 1)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			m.metrics.RecordHistogram(MetricRequestDuration, baseTags, float64(duration.Milliseconds()))

			if err != nil {
				m.handleError(req, err, duration, baseTags)
			} else if resp != nil {
				m.handleSuccess(req, resp, duration, baseTags)
			}
			return resp, err
		})
	}
}

func (m *LoggingMiddleware) logRequest(req *transport.Request) {
	fields := []any{
		"request_id", req.RequestID,
		"model", req.Model,
		"endpoint", req.Endpoint,
		"operation", req.Operation,
		"temperature", req.Sampling.Temperature,
		"max_tokens", req.Sampling.MaxTokens,
		"timeout_seconds", req.Timeout.Seconds(),
	}

	if m.redactPrompts {
		fields = append(fields,
			"system_prompt_length", len(req.SystemPrompt),
			"user_prompt_length", len(req.UserPrompt))
	} else {
		fields = append(fields,
			"system_prompt", req.SystemPrompt,
			"user_prompt", req.UserPrompt)
	}

	m.logger.Debug("llm request started", fields...)
}

func (m *LoggingMiddleware) handleError(req *transport.Request, err error, duration time.Duration, baseTags map[string]string) {
	callErr := llmerrors.Classify(err)

	errorTags := copyTags(baseTags)
	errorTags["error_type"] = string(callErr.Kind)
	m.metrics.IncrementCounter(MetricRequestsErrors, errorTags, 1)

	level := slog.LevelWarn
	if callErr.Kind == llmerrors.KindCancelled {
		level = slog.LevelDebug
	}
	m.logger.Log(context.Background(), level, "llm request failed",
		"request_id", req.RequestID,
		"model", req.Model,
		"operation", req.Operation,
		"duration_ms", duration.Milliseconds(),
		"error_type", callErr.Kind,
		"status_code", callErr.StatusCode,
		"error", err.Error())
}

func (m *LoggingMiddleware) handleSuccess(
	req *transport.Request,
	resp *transport.Response,
	duration time.Duration,
	baseTags map[string]string,
) {
	m.metrics.IncrementCounter(MetricRequestsSuccess, baseTags, 1)
	if resp.Cached {
		m.metrics.IncrementCounter(MetricCacheHits, baseTags, 1)
	}

	m.metrics.RecordHistogram(MetricTokensPrompt, baseTags, float64(resp.Usage.PromptTokens))
	m.metrics.RecordHistogram(MetricTokensCompletion, baseTags, float64(resp.Usage.CompletionTokens))
	m.metrics.RecordHistogram(MetricTokensTotal, baseTags, float64(resp.Usage.TotalTokens))

	fields := []any{
		"request_id", req.RequestID,
		"model", req.Model,
		"operation", req.Operation,
		"duration_ms", duration.Milliseconds(),
		"cached", resp.Cached,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
	}

	if m.redactPrompts {
		fields = append(fields, "response_length", len(resp.Content))
	} else {
		content := resp.Content
		if len(content) > ContentTruncationLimit {
			content = content[:ContentTruncationLimit] + "..."
		}
		fields = append(fields, "response_preview", content)
	}

	m.logger.Info("llm request completed", fields...)
}

// copyTags creates a copy of a metric tag map.
func copyTags(original map[string]string) map[string]string {
	tagsCopy := make(map[string]string, len(original)+1)
	for k, v := range original {
		tagsCopy[k] = v
	}
	return tagsCopy
}
