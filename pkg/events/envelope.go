// Package events provides the generic event infrastructure used to mirror
// experiment progress to downstream consumers. It defines the Envelope type
// for wrapping payloads with consistent metadata and the EventSink interface
// for storage or transmission.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current envelope payload version.
const SchemaVersion = "1.0.0"

// Envelope wraps an event payload with metadata for routing, deduplication,
// and correlation.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "experiment.pair_completed".
	Type string `json:"type"`

	// Source identifies the emitting component.
	Source string `json:"source"`

	// Version enables schema evolution.
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is deterministic for a logical event so re-delivery
	// can be detected.
	IdempotencyKey string `json:"idempotency_key"`

	// ExperimentID correlates every event of one run.
	ExperimentID string `json:"experiment_id"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope. The idempotency key is
// derived from experimentID and keySuffix.
func NewEnvelope(eventType, source, experimentID, keySuffix string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.New().String(),
		Type:           eventType,
		Source:         source,
		Version:        SchemaVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: IdempotencyKey(experimentID, keySuffix),
		ExperimentID:   experimentID,
		Payload:        data,
	}, nil
}

// IdempotencyKey returns H(experimentID || suffix) as hex.
func IdempotencyKey(experimentID, suffix string) string {
	sum := sha256.Sum256([]byte(experimentID + suffix))
	return hex.EncodeToString(sum[:])
}

// EventSink receives envelopes from emitters.
//
// Append should return quickly. Implementations should treat a repeated
// IdempotencyKey as a no-op. Callers never fail their primary operation
// because of a sink error.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink { return NoOpEventSink{} }
