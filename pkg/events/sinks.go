package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemorySink keeps envelopes in memory, dropping repeated idempotency keys.
type MemorySink struct {
	mu   sync.Mutex
	seen map[string]struct{}
	all  []Envelope
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink.
func (m *MemorySink) Append(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[env.IdempotencyKey]; dup {
		return nil
	}
	m.seen[env.IdempotencyKey] = struct{}{}
	m.all = append(m.all, env)
	return nil
}

// Events returns a copy of the stored envelopes in arrival order.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.all)
}

// JSONLSink writes each envelope as one JSON line.
type JSONLSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLSink creates a sink writing to w.
func NewJSONLSink(w io.Writer) *JSONLSink { return &JSONLSink{w: w} }

// Append implements EventSink.
func (s *JSONLSink) Append(_ context.Context, env Envelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

// StreamAdder is the subset of the Redis client used by RedisStreamSink.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamSink publishes envelopes to a Redis stream, one entry per
// event with fields type, idempotency_key, experiment_id, and envelope.
type RedisStreamSink struct {
	client StreamAdder
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink appending to stream. A positive maxLen
// caps the stream approximately.
func NewRedisStreamSink(client StreamAdder, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Append implements EventSink.
func (s *RedisStreamSink) Append(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":            env.Type,
			"idempotency_key": env.IdempotencyKey,
			"experiment_id":   env.ExperimentID,
			"envelope":        string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// FanoutSink appends every envelope to each of its sinks in order.
type FanoutSink []EventSink

// Append implements EventSink. Every sink is tried; the errors are joined.
func (f FanoutSink) Append(ctx context.Context, env Envelope) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
