// Package cache provides Redis-based caching middleware for model responses.
// Only requests marked Cacheable are served from or written to the cache;
// keys derive from the canonical request payload so equivalent calls share
// an entry. Redis failures degrade to a cache bypass.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-explab/internal/llm/configuration"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

const (
	// Redis connection defaults.
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second
)

// RedisClient is the subset of the go-redis API the cache needs.
// *redis.Client satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache implements response caching on top of Redis.
type Cache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// Dial connects to Redis using cfg and verifies the connection.
func Dial(ctx context.Context, cfg configuration.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: defaultPoolSize,
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(timeoutCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// New creates a cache over client. A zero ttl keeps entries until evicted.
func New(client RedisClient, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "cache"),
	}
}

// Middleware returns the caching middleware function.
func (c *Cache) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !req.Cacheable {
				return next.Handle(ctx, req)
			}

			idem, err := transport.GenerateIdemKey(req)
			if err != nil {
				c.logger.Warn("cache key validation failed", "error", err)
				return next.Handle(ctx, req)
			}
			key := transport.CacheKey(req.Operation, idem)

			cached, err := c.get(ctx, key)
			switch {
			case err == nil:
				c.hits.Add(1)
				c.logger.Debug("cache hit", "key", key, "model", req.Model, "operation", req.Operation)
				return cached, nil
			case errors.Is(err, redis.Nil):
				c.misses.Add(1)
			default:
				c.errors.Add(1)
				c.logger.Warn("cache lookup failed", "error", err, "key", key)
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}
			if err := c.set(ctx, key, resp); err != nil {
				c.errors.Add(1)
				c.logger.Warn("cache store failed", "error", err, "key", key)
			}
			return resp, nil
		})
	}
}

func (c *Cache) get(ctx context.Context, key string) (*transport.Response, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var resp transport.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("corrupt cache entry: %w", err)
	}
	resp.Cached = true
	return &resp, nil
}

func (c *Cache) set(ctx context.Context, key string, resp *transport.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Stats holds performance metrics for the cache middleware.
type Stats struct {
	Hits    int64
	Misses  int64
	Errors  int64
	HitRate float64
}

// Stats returns current cache counters.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, Errors: c.errors.Load(), HitRate: hitRate}
}
