package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-explab/pkg/events"
)

func TestNewEnvelope(t *testing.T) {
	env, err := events.NewEnvelope("experiment.pair_completed", "coordinator", "exp-1", ":pair:3",
		map[string]int{"pair_index": 3})
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, events.SchemaVersion, env.Version)
	assert.Equal(t, "exp-1", env.ExperimentID)
	assert.JSONEq(t, `{"pair_index":3}`, string(env.Payload))
	assert.Equal(t, events.IdempotencyKey("exp-1", ":pair:3"), env.IdempotencyKey)
	assert.Len(t, env.IdempotencyKey, 64)

	assert.NotEqual(t, events.IdempotencyKey("exp-1", ":pair:3"), events.IdempotencyKey("exp-1", ":pair:4"))

	_, err = events.NewEnvelope("x", "y", "z", "", make(chan int))
	require.Error(t, err)
}

func TestMemorySink_Dedup(t *testing.T) {
	sink := events.NewMemorySink()
	env := events.Envelope{IdempotencyKey: "k1", Type: "a"}

	require.NoError(t, sink.Append(context.Background(), env))
	require.NoError(t, sink.Append(context.Background(), env))
	require.NoError(t, sink.Append(context.Background(), events.Envelope{IdempotencyKey: "k2", Type: "b"}))

	got := sink.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Type)
	assert.Equal(t, "b", got[1].Type)
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := events.NewJSONLSink(&buf)

	require.NoError(t, sink.Append(context.Background(), events.Envelope{Type: "one"}))
	require.NoError(t, sink.Append(context.Background(), events.Envelope{Type: "two"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &env))
	assert.Equal(t, "two", env.Type)
}

type flakySink struct {
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakySink) Append(context.Context, events.Envelope) error {
	n := f.calls.Add(1)
	if n <= f.failures.Load() {
		return errors.New("sink unavailable")
	}
	return nil
}

func TestEmitter_EmitSafe(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantCalls int32
	}{
		{name: "first_try", failures: 0, wantCalls: 1},
		{name: "retried_once", failures: 1, wantCalls: 2},
		{name: "gives_up", failures: 5, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &flakySink{}
			sink.failures.Store(tt.failures)

			events.NewEmitter(sink, nil).EmitSafe(context.Background(), events.Envelope{Type: "x"})
			assert.Equal(t, tt.wantCalls, sink.calls.Load())
		})
	}

	t.Run("nil_sink", func(t *testing.T) {
		assert.NotPanics(t, func() {
			events.NewEmitter(nil, nil).EmitSafe(context.Background(), events.Envelope{})
			var e *events.Emitter
			e.EmitSafe(context.Background(), events.Envelope{})
		})
	})
}

type recordingStream struct {
	args []*redis.XAddArgs
	err  error
}

func (r *recordingStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	r.args = append(r.args, a)
	cmd := redis.NewStringCmd(ctx, "xadd", a.Stream)
	if r.err != nil {
		cmd.SetErr(r.err)
	} else {
		cmd.SetVal("1-0")
	}
	return cmd
}

func TestRedisStreamSink(t *testing.T) {
	rec := &recordingStream{}
	sink := events.NewRedisStreamSink(rec, "explab:events", 1000)

	env := events.Envelope{Type: "experiment.run_completed", IdempotencyKey: "k", ExperimentID: "e"}
	require.NoError(t, sink.Append(context.Background(), env))

	require.Len(t, rec.args, 1)
	a := rec.args[0]
	assert.Equal(t, "explab:events", a.Stream)
	assert.Equal(t, int64(1000), a.MaxLen)
	assert.True(t, a.Approx)

	values, ok := a.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "experiment.run_completed", values["type"])
	assert.Equal(t, "e", values["experiment_id"])

	rec.err = errors.New("READONLY")
	require.ErrorContains(t, sink.Append(context.Background(), env), "READONLY")
}

func TestFanoutSink(t *testing.T) {
	env, err := events.NewEnvelope("t", "s", "e", ":1", nil)
	require.NoError(t, err)

	mem := events.NewMemorySink()
	var buf bytes.Buffer
	failing := &flakySink{}
	failing.failures.Store(1)

	err = events.FanoutSink{failing, mem, events.NewJSONLSink(&buf)}.Append(context.Background(), env)
	require.Error(t, err)
	assert.Len(t, mem.Events(), 1, "a failing sink does not stop the others")
	assert.NotEmpty(t, buf.String())
}
