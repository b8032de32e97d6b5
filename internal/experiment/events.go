package experiment

import (
	"context"
	"fmt"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/pkg/events"
)

// Event is delivered on a run's progress channel. It is either a
// ProgressEvent or, last of all, a RunComplete.
type Event interface {
	isEvent()
}

// ProgressEvent reports one pair reaching a terminal state.
type ProgressEvent struct {
	PairIndex int
	Stats     domain.ModelStats

	// Completed counts terminal pairs so far, including this one.
	Completed int
	Total     int
}

// RunComplete carries the finished experiment. It is the final event.
type RunComplete struct {
	Experiment *domain.Experiment
}

func (ProgressEvent) isEvent() {}
func (RunComplete) isEvent()   {}

// Envelope types mirrored to an events.EventSink.
const (
	EventTypePairCompleted = "experiment.pair_completed"
	EventTypeRunCompleted  = "experiment.run_completed"

	eventSource = "run-coordinator"
)

type pairCompletedPayload struct {
	PairIndex   int            `json:"pair_index"`
	PromptIndex int            `json:"prompt_index"`
	ModelID     string         `json:"model_id"`
	Outcome     domain.Outcome `json:"outcome"`
	LatencyMS   int64          `json:"latency_ms"`
	TotalTokens int64          `json:"total_tokens"`
	Error       string         `json:"error,omitempty"`
}

type runCompletedPayload struct {
	Mode    domain.ExecutionMode `json:"mode"`
	Summary domain.RunSummary    `json:"summary"`
}

// mirrorProgress sends a pair_completed envelope. The run context may be
// cancelled by now, so emission detaches from it.
func (c *Coordinator) mirrorProgress(ctx context.Context, experimentID string, st domain.ModelStats) {
	env, err := events.NewEnvelope(EventTypePairCompleted, eventSource, experimentID,
		fmt.Sprintf(":pair:%d", st.Pair.Index),
		pairCompletedPayload{
			PairIndex:   st.Pair.Index,
			PromptIndex: st.Pair.PromptIndex,
			ModelID:     st.ModelID,
			Outcome:     st.Outcome,
			LatencyMS:   st.Latency.Milliseconds(),
			TotalTokens: st.Usage.Total,
			Error:       st.Error,
		})
	if err != nil {
		c.logger.Warn("failed to build progress envelope", "error", err)
		return
	}
	c.emitter.EmitSafe(context.WithoutCancel(ctx), env)
}

func (c *Coordinator) mirrorCompletion(ctx context.Context, exp *domain.Experiment) {
	env, err := events.NewEnvelope(EventTypeRunCompleted, eventSource, exp.ID, ":run_completed",
		runCompletedPayload{Mode: exp.Mode, Summary: exp.Summary})
	if err != nil {
		c.logger.Warn("failed to build completion envelope", "error", err)
		return
	}
	c.emitter.EmitSafe(context.WithoutCancel(ctx), env)
}
