package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-explab/internal/domain"
)

var (
	t0   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pair = domain.Pair{Index: 3, PromptIndex: 1, ModelIndex: 1, ModelID: "b"}
)

func TestPairIndex(t *testing.T) {
	tests := []struct {
		prompt, model, models, want int
	}{
		{0, 0, 3, 0},
		{0, 2, 3, 2},
		{1, 0, 3, 3},
		{2, 1, 3, 7},
		{4, 0, 1, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.PairIndex(tt.prompt, tt.model, tt.models))
	}
}

func TestSucceeded(t *testing.T) {
	t.Run("content", func(t *testing.T) {
		c := domain.Completion{
			Content:     "hi",
			Reasoning:   "thought",
			RawRequest:  "{}",
			RawResponse: `{"x":1}`,
			Usage:       domain.TokenUsage{Prompt: 3, Completion: 1, Total: 4},
			Latency:     40 * time.Millisecond,
		}
		resp := domain.Succeeded(pair, c, t0, t0.Add(time.Second))

		require.NoError(t, resp.Validate())
		assert.Equal(t, domain.OutcomeSucceeded, resp.Outcome)
		assert.Equal(t, "hi", resp.Content)
		assert.Equal(t, "thought", resp.Reasoning)
		assert.Equal(t, 40*time.Millisecond, resp.Latency, "endpoint latency wins over wall time")
		assert.Equal(t, int64(4), resp.Usage.Total)
		assert.True(t, resp.Attempted())
		assert.Empty(t, resp.ErrorText())
	})

	t.Run("wall_clock_latency", func(t *testing.T) {
		resp := domain.Succeeded(pair, domain.Completion{Content: "hi"}, t0, t0.Add(250*time.Millisecond))
		assert.Equal(t, 250*time.Millisecond, resp.Latency)
	})

	t.Run("empty_content_is_malformed", func(t *testing.T) {
		resp := domain.Succeeded(pair, domain.Completion{RawResponse: "{}"}, t0, t0.Add(time.Millisecond))

		require.NoError(t, resp.Validate())
		assert.Equal(t, domain.OutcomeFailed, resp.Outcome)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, domain.FailureMalformed, resp.Failure.Kind)
		assert.Equal(t, "{}", resp.RawResponse)
		assert.Equal(t, "malformed: empty completion", resp.ErrorText())
	})
}

func TestFailedResponse(t *testing.T) {
	t.Run("http_status", func(t *testing.T) {
		f := domain.Failure{Kind: domain.FailureHTTPStatus, StatusCode: 429, Message: "slow down"}
		resp := domain.FailedResponse(pair, f, t0, t0.Add(time.Second))

		require.NoError(t, resp.Validate())
		assert.Equal(t, domain.OutcomeFailed, resp.Outcome)
		assert.Equal(t, time.Second, resp.Latency)
		assert.Equal(t, "http_status (429): slow down", resp.ErrorText())
	})

	t.Run("cancelled_kind_maps_to_cancelled_outcome", func(t *testing.T) {
		f := domain.Failure{Kind: domain.FailureCancelled, Message: "run cancelled during call"}
		resp := domain.FailedResponse(pair, f, t0, t0.Add(time.Millisecond))

		require.NoError(t, resp.Validate())
		assert.Equal(t, domain.OutcomeCancelled, resp.Outcome)
		assert.True(t, resp.Attempted())
	})

	t.Run("never_attempted", func(t *testing.T) {
		resp := domain.CancelledResponse(pair, "", t0)

		require.NoError(t, resp.Validate())
		assert.Equal(t, domain.OutcomeCancelled, resp.Outcome)
		assert.False(t, resp.Attempted())
		assert.Zero(t, resp.Latency)
		assert.Equal(t, "cancelled: run cancelled before pair started", resp.ErrorText())
	})
}

func TestModelResponse_Validate(t *testing.T) {
	failure := &domain.Failure{Kind: domain.FailureNetwork, Message: "reset"}
	cancelled := &domain.Failure{Kind: domain.FailureCancelled, Message: "stop"}

	tests := []struct {
		name string
		resp domain.ModelResponse
	}{
		{name: "success_without_content", resp: domain.ModelResponse{Outcome: domain.OutcomeSucceeded}},
		{name: "success_with_failure", resp: domain.ModelResponse{Outcome: domain.OutcomeSucceeded, Content: "x", Failure: failure}},
		{name: "failure_without_failure", resp: domain.ModelResponse{Outcome: domain.OutcomeFailed}},
		{name: "failure_with_content", resp: domain.ModelResponse{Outcome: domain.OutcomeFailed, Content: "x", Failure: failure}},
		{name: "failed_with_cancelled_kind", resp: domain.ModelResponse{Outcome: domain.OutcomeFailed, Failure: cancelled}},
		{name: "cancelled_with_network_kind", resp: domain.ModelResponse{Outcome: domain.OutcomeCancelled, Failure: failure}},
		{name: "pending", resp: domain.ModelResponse{Outcome: "pending"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.resp.Validate(), domain.ErrInvalidResponse)
		})
	}
}
