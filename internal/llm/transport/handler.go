// Package transport defines the request pipeline of the endpoint client:
// the normalized Request/Response types, the Handler and Middleware
// abstractions, and the core HTTP handler that talks to a provider adapter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
)

// ProviderAdapter abstracts provider-specific HTTP communication patterns.
// Implemented by the providers package.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes a request through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with the first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler creates the core handler that performs the HTTP exchange.
func NewHTTPHandler(client *http.Client, adapter ProviderAdapter) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpHandler{
		client:  client,
		adapter: adapter,
		logger:  slog.Default().With("component", "transport"),
	}
}

// httpHandler is the innermost handler of the pipeline.
type httpHandler struct {
	client  *http.Client
	adapter ProviderAdapter
	logger  *slog.Logger
}

// Handle builds, sends, and parses one request. Every returned error is a
// *llmerrors.CallError.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := h.adapter.Build(reqCtx, req)
	if err != nil {
		return nil, &llmerrors.CallError{
			Kind:    llmerrors.KindMalformed,
			Model:   req.Model,
			Message: fmt.Sprintf("failed to build request: %v", err),
			Cause:   err,
		}
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		callErr := classifyDoError(reqCtx, ctx, err)
		callErr.Model = req.Model
		return nil, callErr
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			h.logger.Debug("response body close failed", "error", closeErr)
		}
	}()

	resp, err := h.adapter.Parse(httpResp)
	if err != nil {
		callErr := llmerrors.Classify(err)
		// A deadline hit while reading the body is still a timeout.
		if reqCtx.Err() != nil && callErr.Kind != llmerrors.KindHTTPStatus {
			callErr = classifyDoError(reqCtx, ctx, err)
		}
		callErr.Model = req.Model
		return nil, callErr
	}

	resp.Latency = latency
	return resp, nil
}

// classifyDoError maps an HTTP client error, distinguishing a caller
// cancellation from a deadline on the per-request timeout.
func classifyDoError(reqCtx, parent context.Context, err error) *llmerrors.CallError {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return &llmerrors.CallError{Kind: llmerrors.KindCancelled, Message: "call cancelled", Cause: err}
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return &llmerrors.CallError{Kind: llmerrors.KindTimeout, Message: "deadline exceeded", Cause: err}
	default:
		return llmerrors.Classify(err)
	}
}
