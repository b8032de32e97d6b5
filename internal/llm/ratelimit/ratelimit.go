// Package ratelimit paces calls to model endpoints with per-key token buckets.
//
// Unlike a rejecting limiter, the middleware waits for a token so an
// experiment run slows down instead of recording spurious failures. A wait
// that would outlive the caller's deadline fails immediately with the
// context error, which the client reports as a timeout or cancellation.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-explab/internal/llm/configuration"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

// Limiter holds one token bucket per endpoint and model.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*timedLimiter
	config   configuration.RateLimitConfig
	waited   atomic.Int64
	logger   *slog.Logger
}

// timedLimiter wraps a rate limiter with an atomic last-use timestamp so
// stale buckets can be dropped without a lock on the hot path.
type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// New validates cfg and creates a Limiter.
func New(cfg configuration.RateLimitConfig) (*Limiter, error) {
	if cfg.TokensPerSecond <= 0 || cfg.BurstSize <= 0 {
		return nil, fmt.Errorf("rate limit requires positive tokens_per_second and burst_size, got %v/%d",
			cfg.TokensPerSecond, cfg.BurstSize)
	}
	return &Limiter{
		limiters: make(map[string]*timedLimiter),
		config:   cfg,
		logger:   slog.Default().With("component", "ratelimit"),
	}, nil
}

// NewRateLimitMiddleware creates rate limiting middleware from cfg.
func NewRateLimitMiddleware(cfg configuration.RateLimitConfig) (transport.Middleware, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return l.Middleware(), nil
}

// Middleware returns the rate limiting middleware function.
func (l *Limiter) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := l.Wait(ctx, buildKey(req)); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

// Wait blocks until a token for key is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	lim := l.getOrCreateLimiter(key)

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		// rate.Limiter reports a wait that would exceed the deadline with its
		// own error; surface the deadline so callers classify it as a timeout.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("rate limit wait for %s: %w", key, context.DeadlineExceeded)
		}
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.waited.Add(1)
		l.logger.Debug("rate limited", "key", key, "waited", waited)
	}
	return nil
}

// buildKey scopes buckets to the endpoint and model so independent servers
// do not throttle each other.
func buildKey(req *transport.Request) string {
	return req.Endpoint + "|" + req.Model
}

// getOrCreateLimiter retrieves an existing token-bucket limiter or creates a
// new one using double-checked locking.
func (l *Limiter) getOrCreateLimiter(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	l.mu.RLock()
	if tl, ok := l.limiters[key]; ok {
		tl.lastUsed.Store(now)
		lim := tl.limiter
		l.mu.RUnlock()
		return lim
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if tl, ok := l.limiters[key]; ok {
		tl.lastUsed.Store(now)
		return tl.limiter
	}

	tl := &timedLimiter{limiter: rate.NewLimiter(rate.Limit(l.config.TokensPerSecond), l.config.BurstSize)}
	tl.lastUsed.Store(now)
	l.limiters[key] = tl
	return tl.limiter
}

// CleanupStale removes limiters not used since before.
func (l *Limiter) CleanupStale(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := before.UnixNano()
	removed := 0
	for key, tl := range l.limiters {
		if tl.lastUsed.Load() < cutoff {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Stats is a snapshot of limiter activity.
type Stats struct {
	// Limiters is the number of live per-key buckets.
	Limiters int
	// Waits counts calls that had to wait for a token.
	Waits int64
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	n := len(l.limiters)
	l.mu.RUnlock()
	return Stats{Limiters: n, Waits: l.waited.Load()}
}
