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
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryLimiter_RejectsAtLimitAndRollsOver(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 3, 6, 10, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiterWithClock(clock.Now)

	const key, limit = "llm:requests:minute", 3

	for i := 0; i < limit; i++ {
		blocked, err := l.TooManyAttempts(ctx, key, limit)
		require.NoError(t, err)
		require.False(t, blocked, "attempt %d", i+1)
		require.NoError(t, l.Hit(ctx, key, time.Minute))
	}

	blocked, err := l.TooManyAttempts(ctx, key, limit)
	require.NoError(t, err)
	assert.True(t, blocked, "call after reaching the limit must be rejected")

	clock.Advance(59 * time.Second)
	blocked, _ = l.TooManyAttempts(ctx, key, limit)
	assert.True(t, blocked, "still inside the window")

	clock.Advance(time.Second)
	blocked, _ = l.TooManyAttempts(ctx, key, limit)
	assert.False(t, blocked, "window rolled over")
	assert.Zero(t, l.Attempts(key))
}

func TestMemoryLimiter_HitAfterExpiryStartsNewWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := NewMemoryLimiterWithClock(clock.Now)

	require.NoError(t, l.Hit(ctx, "k", time.Minute))
	require.NoError(t, l.Hit(ctx, "k", time.Minute))
	assert.Equal(t, 2, l.Attempts("k"))

	clock.Advance(2 * time.Minute)
	require.NoError(t, l.Hit(ctx, "k", time.Minute))
	assert.Equal(t, 1, l.Attempts("k"))
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	require.NoError(t, l.Hit(ctx, "minute", time.Minute))
	blocked, err := l.TooManyAttempts(ctx, "minute", 1)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = l.TooManyAttempts(ctx, "day", 1)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Hit(ctx, "k", time.Minute))
	}

	blocked, err := l.TooManyAttempts(ctx, "k", 0)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestMemoryLimiter_ConcurrentHitsAreCounted(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Hit(ctx, "shared", time.Hour)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.Attempts("shared"))
}
