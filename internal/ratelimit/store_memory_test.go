package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreSlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithMemoryClock(clock.Now))

	for i := range 3 {
		res, err := store.Allow(ctx, "issue:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clock.Advance(10 * time.Second)
	}

	res, err := store.Allow(ctx, "issue:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter, "first request at t=0 frees up at t=60s, now is t=30s")

	other, err := store.Allow(ctx, "issue:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(31 * time.Second)
	res, err = store.Allow(ctx, "issue:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "oldest request slid out of the window")
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithMemoryClock(clock.Now))

	_, err := store.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = store.Allow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, store.Sweep(time.Minute))
	assert.Equal(t, 1, store.Sweep(0))
}

func TestSanitizeKeySegment(t *testing.T) {
	assert.Equal(t, "2001_db8__1", SanitizeKeySegment("2001:db8::1"))
}
