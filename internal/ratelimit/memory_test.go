package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultAuthPolicy.Validate())
	assert.Error(t, Policy{Limit: 0, Window: time.Minute}.Validate())
	assert.Error(t, Policy{Limit: 1}.Validate())
	assert.Error(t, Policy{Limit: 1, Window: time.Minute, Block: -time.Second}.Validate())
}

func TestMemoryWindowBlocksAfterLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w, err := NewMemoryWindow(DefaultAuthPolicy, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := w.Hit(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, d.Remaining)
		assert.Equal(t, 5, d.Limit)
	}

	d, err := w.Hit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)

	other, err := w.Hit(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(29 * time.Minute)
	d, err = w.Hit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	clock.Advance(time.Minute)
	d, err = w.Hit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "block expired")
	assert.Equal(t, 4, d.Remaining)
}

func TestMemoryWindowResetsAfterWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w, err := NewMemoryWindow(Policy{Limit: 2, Window: time.Minute}, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := w.Hit(ctx, "k")
		require.True(t, d.Allowed)
	}
	d, _ := w.Hit(ctx, "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter, "no block: wait for the window")

	clock.Advance(time.Minute)
	d, _ = w.Hit(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestMemoryWindowSweepsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w, err := NewMemoryWindow(Policy{Limit: 2, Window: time.Minute}, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = w.Hit(ctx, "a")
	_, _ = w.Hit(ctx, "b")
	assert.Equal(t, 2, w.Len())

	clock.Advance(2 * time.Minute)
	_, _ = w.Hit(ctx, "c")
	assert.Equal(t, 1, w.Len())
}

func TestNewMemoryWindowRejectsBadPolicy(t *testing.T) {
	_, err := NewMemoryWindow(Policy{})
	assert.Error(t, err)
}
