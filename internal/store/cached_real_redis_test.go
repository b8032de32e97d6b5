//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ahrav/go-explab/internal/store"
)

// setupRedis starts a throwaway Redis container and returns a connected client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestCached_RealRedis(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)
	cached := store.NewCached(newStore(t), rdb, time.Minute, nil)

	h, err := cached.Save(ctx, sampleExperiment("real"))
	require.NoError(t, err)

	first, err := cached.Load(ctx, h)
	require.NoError(t, err)
	second, err := cached.Load(ctx, h)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "# Notes\nalpha looked best", second.Notes)
	assert.Equal(t, store.CacheStats{Hits: 2}, cached.Stats(), "save writes through")

	ttl, err := rdb.TTL(ctx, "explab:experiment:"+h.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, cached.UpdateNotes(ctx, h, "rewritten"))
	raw, err := rdb.Get(ctx, "explab:experiment:"+h.String()).Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"notes":"rewritten"`, "notes update refreshes the entry")

	third, err := cached.Load(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", third.Notes)

	require.NoError(t, cached.Delete(ctx, h))
	_, err = cached.Load(ctx, h)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
