package errors

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-explab/internal/domain"
)

func TestKindValues(t *testing.T) {
	assert.Equal(t, "network", string(KindNetwork))
	assert.Equal(t, "http_status", string(KindHTTPStatus))
	assert.Equal(t, "timeout", string(KindTimeout))
	assert.Equal(t, "malformed", string(KindMalformed))
	assert.Equal(t, "cancelled", string(KindCancelled))
	assert.Equal(t, "unavailable", string(KindUnavailable))
}

func TestCallError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CallError
		want string
	}{
		{
			name: "http_status",
			err:  &CallError{Kind: KindHTTPStatus, StatusCode: 503, Message: "overloaded"},
			want: "http_status error (status 503): overloaded",
		},
		{
			name: "timeout",
			err:  &CallError{Kind: KindTimeout, Message: "deadline exceeded"},
			want: "timeout error: deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCallError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *CallError
		want bool
	}{
		{"network", &CallError{Kind: KindNetwork}, true},
		{"timeout", &CallError{Kind: KindTimeout}, true},
		{"status_429", &CallError{Kind: KindHTTPStatus, StatusCode: http.StatusTooManyRequests}, true},
		{"status_408", &CallError{Kind: KindHTTPStatus, StatusCode: http.StatusRequestTimeout}, true},
		{"status_500", &CallError{Kind: KindHTTPStatus, StatusCode: http.StatusInternalServerError}, true},
		{"status_401", &CallError{Kind: KindHTTPStatus, StatusCode: http.StatusUnauthorized}, false},
		{"status_400", &CallError{Kind: KindHTTPStatus, StatusCode: http.StatusBadRequest}, false},
		{"malformed", &CallError{Kind: KindMalformed}, false},
		{"cancelled", &CallError{Kind: KindCancelled}, false},
		{"unavailable", &CallError{Kind: KindUnavailable}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsRetryable())
		})
	}
}

func TestCallError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &CallError{Kind: KindNetwork, Message: "boom", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestCallError_GetRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, (&CallError{RetryAfter: 3}).GetRetryAfter())
	assert.Zero(t, (&CallError{}).GetRetryAfter())
}

func TestCallError_Failure(t *testing.T) {
	err := NewHTTPStatusError(502, []byte("bad gateway"), "")
	got := err.Failure()

	assert.Equal(t, domain.Failure{
		Kind:       domain.FailureHTTPStatus,
		StatusCode: 502,
		Message:    "HTTP 502: bad gateway",
	}, got)
}

func TestNewHTTPStatusError(t *testing.T) {
	t.Run("provider_message_preferred", func(t *testing.T) {
		err := NewHTTPStatusError(401, []byte(`{"error":{"message":"bad key"}}`), "bad key")
		assert.Equal(t, "bad key", err.Message)
		assert.Equal(t, `{"error":{"message":"bad key"}}`, err.Body)
		assert.Equal(t, 401, err.StatusCode)
	})

	t.Run("body_truncated", func(t *testing.T) {
		body := strings.Repeat("x", maxBodyInMessage+100)
		err := NewHTTPStatusError(500, []byte(body), "")
		assert.Len(t, err.Body, maxBodyInMessage)
	})
}

func TestValidationError(t *testing.T) {
	assert.Equal(t, "validation failed for model: required",
		(&ValidationError{Field: "model", Message: "required"}).Error())
	assert.Equal(t, "validation failed: bad", (&ValidationError{Message: "bad"}).Error())
}
