package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstatus/statuspage/internal/cache"
)

type snapshot struct {
	Status string   `json:"status"`
	Slugs  []string `json:"slugs"`
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()

	var got snapshot
	ok, err := c.Get(ctx, "page", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "page", snapshot{Status: "DEGRADED", Slugs: []string{"rpc-api"}}, time.Minute))

	ok, err = c.Get(ctx, "page", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DEGRADED", got.Status)
	assert.Equal(t, []string{"rpc-api"}, got.Slugs)

	require.NoError(t, c.Delete(ctx, "page", "missing"))
	ok, err = c.Get(ctx, "page", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "page", snapshot{Status: "OPERATIONAL"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var got snapshot
	ok, err := c.Get(ctx, "page", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := cache.NewRedisCache(context.Background(), cache.Config{URL: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}
