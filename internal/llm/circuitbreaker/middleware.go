// Package circuitbreaker stops calls to an endpoint/model that keeps
// failing. Breakers are created lazily per endpoint and model using
// sony/gobreaker; an open breaker fails calls immediately with a
// KindUnavailable error wrapping llmerrors.ErrCircuitOpen.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/ahrav/go-explab/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

// StateObserver is notified of breaker state transitions.
type StateObserver func(key string, from, to gobreaker.State)

// Breakers manages one circuit breaker per endpoint and model.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	config   configuration.CircuitBreakerConfig
	observer StateObserver
	logger   *slog.Logger
}

// New creates an empty breaker set. observer may be nil.
func New(cfg configuration.CircuitBreakerConfig, observer StateObserver) *Breakers {
	return &Breakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   cfg,
		observer: observer,
		logger:   slog.Default().With("component", "circuit_breaker"),
	}
}

// Middleware returns the circuit breaker middleware function.
func (b *Breakers) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			key := buildKey(req)
			cb := b.getOrCreate(key)

			out, err := cb.Execute(func() (any, error) {
				return next.Handle(ctx, req)
			})
			if err != nil {
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					return nil, &llmerrors.CallError{
						Kind:    llmerrors.KindUnavailable,
						Model:   req.Model,
						Message: fmt.Sprintf("circuit breaker for %s: %v", key, err),
						Cause:   fmt.Errorf("%w: %w", llmerrors.ErrCircuitOpen, err),
					}
				}
				return nil, err
			}
			return out.(*transport.Response), nil
		})
	}
}

// State reports the state of the breaker for endpoint and model. Unknown
// keys report closed.
func (b *Breakers) State(endpoint, model string) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.breakers[endpoint+"|"+model]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func buildKey(req *transport.Request) string {
	return req.Endpoint + "|" + req.Model
}

func (b *Breakers) getOrCreate(key string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[key]; ok {
		return cb
	}

	minRequests := b.config.MinRequests
	ratio := b.config.FailureRatio
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				"key", name,
				"from", from.String(),
				"to", to.String())
			if b.observer != nil {
				b.observer(name, from, to)
			}
		},
	})
	b.breakers[key] = cb
	return cb
}

// isSuccessful decides which outcomes count against endpoint health. Only
// faults of the endpoint itself trip the breaker: caller cancellations,
// client-side 4xx errors, and undecodable bodies do not.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	callErr := llmerrors.Classify(err)
	switch callErr.Kind {
	case llmerrors.KindNetwork, llmerrors.KindTimeout:
		return false
	case llmerrors.KindHTTPStatus:
		return callErr.StatusCode < http.StatusInternalServerError
	default:
		return true
	}
}
