package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-explab/internal/domain"
)

const cacheKeyPrefix = "explab:experiment:"

// DefaultCacheTTL is how long a cached record or tombstone lives.
const DefaultCacheTTL = time.Hour

// RedisClient is the subset of the Redis client used by Cached.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// tombstone marks a deleted record so a read that raced the delete cannot
// fill the key with the old version.
const tombstone = "deleted"

// cachedRecord keeps notes with the record, which the structured JSON
// form omits.
type cachedRecord struct {
	domain.Experiment
	Notes string `json:"notes"`
}

// Cached is a read-through Redis cache in front of another Store.
//
// Writes go to the underlying store first and then overwrite the cached
// copy; deletes leave a tombstone. Read fills use SET NX, so a Load that
// read an older version before a concurrent write never replaces the
// newer entry. Redis failures are logged and fall through to the
// underlying store.
type Cached struct {
	next   Store
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger

	// writeMu orders writers of this instance against each other.
	writeMu sync.Mutex

	hits, misses, errs atomic.Int64
}

var _ Store = (*Cached)(nil)

// NewCached wraps next. A non-positive ttl uses DefaultCacheTTL.
func NewCached(next Store, client RedisClient, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, client: client, ttl: ttl, logger: logger.With("component", "experiment_cache")}
}

func cacheKey(h Handle) string { return cacheKeyPrefix + string(h) }

// Save implements Store. On success the saved version replaces the cached
// one; a partial failure drops the entry instead.
func (c *Cached) Save(ctx context.Context, exp *domain.Experiment) (Handle, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	h, err := c.next.Save(ctx, exp)
	switch {
	case h == "":
	case err == nil:
		c.store(ctx, h, exp)
	default:
		c.invalidate(ctx, h)
	}
	return h, err
}

// Load implements Store.
func (c *Cached) Load(ctx context.Context, h Handle) (*domain.Experiment, error) {
	key := cacheKey(h)
	fill := true

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil && string(data) == tombstone:
		c.misses.Add(1)
		fill = false
	case err == nil:
		var rec cachedRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			c.hits.Add(1)
			exp := rec.Experiment
			exp.Notes = rec.Notes
			return &exp, nil
		}
		c.errs.Add(1)
		c.logger.Warn("discarding undecodable cache entry", "experiment_id", h)
		c.invalidate(ctx, h)
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
	default:
		c.errs.Add(1)
		c.logger.Warn("experiment cache read failed", "experiment_id", h, "error", err)
	}

	exp, err := c.next.Load(ctx, h)
	if err != nil {
		return nil, err
	}
	if !fill {
		return exp, nil
	}

	data, err = encodeRecord(exp)
	if err != nil {
		return exp, nil
	}
	if err := c.client.SetNX(ctx, key, data, c.ttl).Err(); err != nil {
		c.errs.Add(1)
		c.logger.Warn("experiment cache fill failed", "experiment_id", h, "error", err)
	}
	return exp, nil
}

// List implements Store.
func (c *Cached) List(ctx context.Context) ([]Entry, error) { return c.next.List(ctx) }

// UpdateNotes implements Store.
func (c *Cached) UpdateNotes(ctx context.Context, h Handle, notes string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.next.UpdateNotes(ctx, h, notes); err != nil {
		c.invalidate(ctx, h)
		return err
	}
	exp, err := c.next.Load(ctx, h)
	if err != nil {
		c.invalidate(ctx, h)
		return nil
	}
	c.store(ctx, h, exp)
	return nil
}

// Delete implements Store.
func (c *Cached) Delete(ctx context.Context, h Handle) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := c.next.Delete(ctx, h)
	if setErr := c.client.Set(context.WithoutCancel(ctx), cacheKey(h), tombstone, c.ttl).Err(); setErr != nil {
		c.errs.Add(1)
		c.logger.Warn("experiment cache tombstone failed", "experiment_id", h, "error", setErr)
		c.invalidate(ctx, h)
	}
	return err
}

// FindByName implements Store.
func (c *Cached) FindByName(ctx context.Context, name string) (Handle, bool, error) {
	return c.next.FindByName(ctx, name)
}

func encodeRecord(exp *domain.Experiment) ([]byte, error) {
	return json.Marshal(cachedRecord{Experiment: *exp, Notes: exp.Notes})
}

// store overwrites the cached copy of h with exp, dropping the entry when
// the write fails.
func (c *Cached) store(ctx context.Context, h Handle, exp *domain.Experiment) {
	data, err := encodeRecord(exp)
	if err == nil {
		err = c.client.Set(context.WithoutCancel(ctx), cacheKey(h), data, c.ttl).Err()
	}
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn("experiment cache write failed", "experiment_id", h, "error", err)
		c.invalidate(ctx, h)
	}
}

func (c *Cached) invalidate(ctx context.Context, h Handle) {
	if err := c.client.Del(context.WithoutCancel(ctx), cacheKey(h)).Err(); err != nil {
		c.errs.Add(1)
		c.logger.Warn("experiment cache invalidation failed", "experiment_id", h, "error", err)
	}
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// Stats returns a snapshot of the cache counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}
