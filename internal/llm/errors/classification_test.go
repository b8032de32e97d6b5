package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Run("nil_error", func(t *testing.T) {
		assert.Nil(t, Classify(nil))
	})

	t.Run("call_error_preserved", func(t *testing.T) {
		orig := &CallError{Kind: KindHTTPStatus, StatusCode: 429, Message: "slow down"}
		got := Classify(fmt.Errorf("wrapped: %w", orig))
		assert.Same(t, orig, got)
	})

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped_deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout},
		{"cancelled", context.Canceled, KindCancelled},
		{"circuit_open", fmt.Errorf("gpt-4: %w", ErrCircuitOpen), KindUnavailable},
		{"empty_completion", ErrEmptyCompletion, KindMalformed},
		{"net_timeout", timeoutErr{}, KindTimeout},
		{"op_error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindNetwork},
		{"dns_error", &net.DNSError{Err: "no such host", Name: "x"}, KindNetwork},
		{"url_error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("boom")}, KindNetwork},
		{"connection_reset_string", errors.New("read: connection reset by peer"), KindNetwork},
		{"unexpected_eof_string", errors.New("unexpected EOF"), KindNetwork},
		{"timeout_string", errors.New("request timeout while reading"), KindTimeout},
		{"unknown_falls_back_to_malformed", errors.New("json: cannot unmarshal"), KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind, "error %q", tt.err)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(ErrCircuitOpen))
}
