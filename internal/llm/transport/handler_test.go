package transport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

// stubAdapter posts the user prompt to a fixed URL and returns the body as content.
type stubAdapter struct {
	url      string
	buildErr error
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	if a.buildErr != nil {
		return nil, a.buildErr
	}
	return http.NewRequestWithContext(ctx, http.MethodPost, a.url, strings.NewReader(req.UserPrompt))
}

func (a *stubAdapter) Parse(resp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, llmerrors.NewHTTPStatusError(resp.StatusCode, body, "")
	}
	return &transport.Response{Content: string(body)}, nil
}

func TestHandlerFunc_Interface(t *testing.T) {
	var h transport.Handler = transport.HandlerFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Content: "echo " + req.UserPrompt}, nil
	})

	resp, err := h.Handle(context.Background(), &transport.Request{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo hi", resp.Content)
}

func TestChain_MiddlewareExecution(t *testing.T) {
	var order []string
	record := func(name string) transport.Middleware {
		return func(next transport.Handler) transport.Handler {
			return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				order = append(order, name+":before")
				resp, err := next.Handle(ctx, req)
				order = append(order, name+":after")
				return resp, err
			})
		}
	}

	core := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		order = append(order, "core")
		return &transport.Response{Content: "ok"}, nil
	})

	h := transport.Chain(core, record("outer"), record("inner"))
	_, err := h.Handle(context.Background(), &transport.Request{})
	require.NoError(t, err)

	assert.Equal(t, []string{"outer:before", "inner:before", "core", "inner:after", "outer:after"}, order)
}

func TestHTTPHandler(t *testing.T) {
	t.Run("success_sets_latency", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		h := transport.NewHTTPHandler(srv.Client(), &stubAdapter{url: srv.URL})
		resp, err := h.Handle(context.Background(), &transport.Request{Model: "m", UserPrompt: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "hello", resp.Content)
		assert.Positive(t, resp.Latency)
	})

	t.Run("status_error_is_call_error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		h := transport.NewHTTPHandler(srv.Client(), &stubAdapter{url: srv.URL})
		_, err := h.Handle(context.Background(), &transport.Request{Model: "m"})

		var callErr *llmerrors.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, llmerrors.KindHTTPStatus, callErr.Kind)
		assert.Equal(t, http.StatusBadGateway, callErr.StatusCode)
		assert.Equal(t, "m", callErr.Model)
	})

	t.Run("per_request_timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		h := transport.NewHTTPHandler(srv.Client(), &stubAdapter{url: srv.URL})
		_, err := h.Handle(context.Background(), &transport.Request{Model: "m", Timeout: 50 * time.Millisecond})

		var callErr *llmerrors.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, llmerrors.KindTimeout, callErr.Kind)
	})

	t.Run("caller_cancellation", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(30*time.Millisecond, cancel)

		h := transport.NewHTTPHandler(srv.Client(), &stubAdapter{url: srv.URL})
		_, err := h.Handle(ctx, &transport.Request{Model: "m", Timeout: 5 * time.Second})

		var callErr *llmerrors.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, llmerrors.KindCancelled, callErr.Kind)
	})

	t.Run("network_error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		h := transport.NewHTTPHandler(http.DefaultClient, &stubAdapter{url: url})
		_, err := h.Handle(context.Background(), &transport.Request{Model: "m"})

		var callErr *llmerrors.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, llmerrors.KindNetwork, callErr.Kind)
	})

	t.Run("build_error_is_malformed", func(t *testing.T) {
		h := transport.NewHTTPHandler(nil, &stubAdapter{buildErr: errors.New("bad body")})
		_, err := h.Handle(context.Background(), &transport.Request{Model: "m"})

		var callErr *llmerrors.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, llmerrors.KindMalformed, callErr.Kind)
	})
}

func TestGenerateIdemKey(t *testing.T) {
	base := &transport.Request{
		Operation:    transport.OpJudge,
		Model:        "gpt-4",
		SystemPrompt: "You are a judge.",
		UserPrompt:   "Rate   this\r\nanswer",
	}

	t.Run("whitespace_insensitive", func(t *testing.T) {
		other := *base
		other.UserPrompt = "  Rate this\nanswer  "

		k1, err := transport.GenerateIdemKey(base)
		require.NoError(t, err)
		k2, err := transport.GenerateIdemKey(&other)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1.String(), 64)
	})

	t.Run("params_change_key", func(t *testing.T) {
		other := *base
		other.Sampling.Temperature = 0.7

		k1, _ := transport.GenerateIdemKey(base)
		k2, _ := transport.GenerateIdemKey(&other)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("missing_fields", func(t *testing.T) {
		_, err := transport.GenerateIdemKey(&transport.Request{Model: "m"})
		require.ErrorIs(t, err, transport.ErrOperationRequired)

		_, err = transport.GenerateIdemKey(&transport.Request{Operation: transport.OpJudge})
		require.ErrorIs(t, err, transport.ErrModelRequired)
	})

	t.Run("cache_key_format", func(t *testing.T) {
		assert.Equal(t, fmt.Sprintf("llm:judge:%s", "abc"), transport.CacheKey(transport.OpJudge, "abc"))
	})
}
