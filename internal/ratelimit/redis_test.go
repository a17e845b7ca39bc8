package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisWindowBlocksAfterLimit(t *testing.T) {
	mr, rdb := newRedis(t)
	w, err := NewRedisWindow(rdb, DefaultAuthPolicy, WithPrefix("test:"))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := w.Hit(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, d.Remaining)
	}
	assert.True(t, mr.Exists("test:hits:10.0.0.1"))
	assert.Equal(t, 15*time.Minute, mr.TTL("test:hits:10.0.0.1"))

	d, err := w.Hit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
	assert.True(t, mr.Exists("test:block:10.0.0.1"))

	mr.FastForward(10 * time.Minute)
	d, err = w.Hit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 20*time.Minute, d.RetryAfter)

	mr.FastForward(20 * time.Minute)
	d, err = w.Hit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestRedisWindowExpiresCounter(t *testing.T) {
	mr, rdb := newRedis(t)
	w, err := NewRedisWindow(rdb, Policy{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	d, err := w.Hit(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = w.Hit(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	mr.FastForward(time.Minute)
	d, err = w.Hit(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisWindowReportsUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	w, err := NewRedisWindow(rdb, DefaultAuthPolicy)
	require.NoError(t, err)
	mr.Close()

	_, err = w.Hit(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisWindowValidates(t *testing.T) {
	_, err := NewRedisWindow(nil, DefaultAuthPolicy)
	assert.Error(t, err)
	_, rdb := newRedis(t)
	_, err = NewRedisWindow(rdb, Policy{})
	assert.Error(t, err)
}
