package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	emitAttempts   = 2
	emitRetryDelay = 200 * time.Millisecond
)

// Emitter delivers envelopes to a sink on a best-effort basis.
type Emitter struct {
	sink   EventSink
	logger *slog.Logger
}

// NewEmitter creates an emitter. A nil sink disables emission.
func NewEmitter(sink EventSink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: sink, logger: logger.With("component", "events")}
}

// EmitSafe appends envelope with one retry after a short delay. Failures
// are logged and never returned.
func (e *Emitter) EmitSafe(ctx context.Context, envelope Envelope) {
	if e == nil || e.sink == nil {
		return
	}

	var lastErr error
	for attempt := range emitAttempts {
		if attempt > 0 {
			select {
			case <-time.After(emitRetryDelay):
			case <-ctx.Done():
				e.logger.Warn("event emission cancelled", "event_type", envelope.Type)
				return
			}
		}

		if err := e.sink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}
		e.logger.Debug("event emitted",
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	e.logger.Warn("event emission failed",
		"event_type", envelope.Type,
		"attempts", emitAttempts,
		"error", lastErr)
}
