package domain

import "time"

// ModelStats is a read-only view over one ModelResponse. It is only derived
// from a response, never constructed independently.
type ModelStats struct {
	Pair     Pair          `json:"pair"`
	ModelID  string        `json:"model_id"`
	Outcome  Outcome       `json:"outcome"`
	Latency  time.Duration `json:"latency"`
	Usage    TokenUsage    `json:"usage"`
	Error    string        `json:"error,omitempty"`
	Finished time.Time     `json:"finished"`
}

// Succeeded reports whether the pair completed with content.
func (s ModelStats) Succeeded() bool { return s.Outcome == OutcomeSucceeded }

// RunSummary aggregates all ModelStats of a run. Cancelled pairs count as
// failures, so SuccessCount+FailureCount == Total; CancelledCount is the
// cancelled subset of FailureCount.
//
// Latency fields cover successful pairs only. When there are no successes
// they are zero and HasLatency is false.
type RunSummary struct {
	Total          int `json:"total"`
	SuccessCount   int `json:"success_count"`
	FailureCount   int `json:"failure_count"`
	CancelledCount int `json:"cancelled_count"`

	HasLatency    bool          `json:"has_latency"`
	MeanLatency   time.Duration `json:"mean_latency"`
	MedianLatency time.Duration `json:"median_latency"`
	MinLatency    time.Duration `json:"min_latency"`
	MaxLatency    time.Duration `json:"max_latency"`

	// TotalTokens sums Usage.Total over successful pairs.
	TotalTokens int64 `json:"total_tokens"`
}

// ModelSummary is a per-model roll-up across all prompts of a run.
type ModelSummary struct {
	ModelID string     `json:"model_id"`
	Summary RunSummary `json:"summary"`
}
