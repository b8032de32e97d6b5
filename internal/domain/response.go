package domain

import (
	"fmt"
	"time"
)

// Pair identifies one (model configuration, prompt) combination of a run.
// Index is prompt-major: PromptIndex*len(configs) + ModelIndex.
type Pair struct {
	Index       int    `json:"index"`
	PromptIndex int    `json:"prompt_index"`
	ModelIndex  int    `json:"model_index"`
	ModelID     string `json:"model_id"`
}

// PairIndex returns the prompt-major index of (promptIdx, modelIdx) for a
// run with numModels configurations.
func PairIndex(promptIdx, modelIdx, numModels int) int {
	return promptIdx*numModels + modelIdx
}

// Outcome is the terminal state of a pair.
type Outcome string

const (
	// OutcomeSucceeded means the call returned non-empty content.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeFailed means the call returned an error (transport, status,
	// timeout, malformed body, open circuit).
	OutcomeFailed Outcome = "failed"

	// OutcomeCancelled means the run was cancelled before or during the call.
	OutcomeCancelled Outcome = "cancelled"
)

// FailureKind classifies why a pair did not succeed.
type FailureKind string

const (
	FailureNetwork     FailureKind = "network"
	FailureHTTPStatus  FailureKind = "http_status"
	FailureTimeout     FailureKind = "timeout"
	FailureMalformed   FailureKind = "malformed"
	FailureCancelled   FailureKind = "cancelled"
	FailureUnavailable FailureKind = "unavailable"
)

// Failure describes a non-successful call as data.
type Failure struct {
	Kind FailureKind `json:"kind"`

	// StatusCode is set for FailureHTTPStatus.
	StatusCode int `json:"status_code,omitempty"`

	Message string `json:"message"`
}

// Error renders the failure in the form shown to users.
func (f Failure) Error() string {
	if f.Kind == FailureHTTPStatus && f.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", f.Kind, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// TokenUsage reports token counts for one call.
type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Completion is the normalized payload of a successful endpoint call.
type Completion struct {
	Content     string
	Reasoning   string
	RawRequest  string
	RawResponse string
	Usage       TokenUsage
	Latency     time.Duration
}

// ModelResponse is the result of one pair. On a terminal response exactly
// one of Content (non-empty) and Failure (non-nil) holds.
type ModelResponse struct {
	Pair    Pair    `json:"pair"`
	Outcome Outcome `json:"outcome"`

	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	// RawRequest and RawResponse keep the exchanged payloads for audit.
	RawRequest  string `json:"raw_request,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`

	Failure *Failure `json:"failure,omitempty"`

	Latency time.Duration `json:"latency"`
	Usage   TokenUsage    `json:"usage"`

	// StartedAt is zero for pairs cancelled without an attempt.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded builds a successful response. An empty completion is reported
// as a malformed failure so the content-xor-failure rule always holds.
func Succeeded(pair Pair, c Completion, started, finished time.Time) ModelResponse {
	if c.Content == "" {
		resp := FailedResponse(pair, Failure{Kind: FailureMalformed, Message: "empty completion"}, started, finished)
		resp.RawRequest = c.RawRequest
		resp.RawResponse = c.RawResponse
		return resp
	}
	latency := c.Latency
	if latency <= 0 {
		latency = finished.Sub(started)
	}
	return ModelResponse{
		Pair:        pair,
		Outcome:     OutcomeSucceeded,
		Content:     c.Content,
		Reasoning:   c.Reasoning,
		RawRequest:  c.RawRequest,
		RawResponse: c.RawResponse,
		Latency:     latency,
		Usage:       c.Usage,
		StartedAt:   started,
		FinishedAt:  finished,
	}
}

// FailedResponse builds a failed response. A cancelled failure kind yields
// OutcomeCancelled.
func FailedResponse(pair Pair, f Failure, started, finished time.Time) ModelResponse {
	outcome := OutcomeFailed
	if f.Kind == FailureCancelled {
		outcome = OutcomeCancelled
	}
	var latency time.Duration
	if !started.IsZero() {
		latency = finished.Sub(started)
	}
	return ModelResponse{
		Pair:       pair,
		Outcome:    outcome,
		Failure:    &f,
		Latency:    latency,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

// CancelledResponse builds the response for a pair that was never attempted.
func CancelledResponse(pair Pair, reason string, at time.Time) ModelResponse {
	if reason == "" {
		reason = "run cancelled before pair started"
	}
	return FailedResponse(pair, Failure{Kind: FailureCancelled, Message: reason}, time.Time{}, at)
}

// Attempted reports whether a call was issued for the pair.
func (r ModelResponse) Attempted() bool { return !r.StartedAt.IsZero() }

// ErrorText returns the failure description, or "" for a success.
func (r ModelResponse) ErrorText() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Error()
}

// Validate enforces the terminal-response shape.
func (r ModelResponse) Validate() error {
	switch r.Outcome {
	case OutcomeSucceeded:
		if r.Content == "" || r.Failure != nil {
			return fmt.Errorf("%w: pair %d succeeded without exactly one of content/failure", ErrInvalidResponse, r.Pair.Index)
		}
	case OutcomeFailed, OutcomeCancelled:
		if r.Failure == nil || r.Content != "" {
			return fmt.Errorf("%w: pair %d %s without exactly one of content/failure", ErrInvalidResponse, r.Pair.Index, r.Outcome)
		}
		if (r.Outcome == OutcomeCancelled) != (r.Failure.Kind == FailureCancelled) {
			return fmt.Errorf("%w: pair %d outcome %s with failure kind %s", ErrInvalidResponse, r.Pair.Index, r.Outcome, r.Failure.Kind)
		}
	default:
		return fmt.Errorf("%w: pair %d has non-terminal outcome %q", ErrInvalidResponse, r.Pair.Index, r.Outcome)
	}
	return nil
}
