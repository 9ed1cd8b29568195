package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketDrainsAtCapacity(t *testing.T) {
	t.Parallel()

	// Tiny refill rate so the drain phase sees no meaningful refill.
	b := NewTokenBucket(5, 0.001)

	for i := 0; i < 5; i++ {
		assert.True(t, b.TryConsume(1), "withdrawal %d", i)
	}
	assert.False(t, b.TryConsume(1), "bucket should be empty after capacity withdrawals")
}

func TestBucketRefillsOverTime(t *testing.T) {
	t.Parallel()

	// 10 tokens/second: one token becomes available after 100ms.
	b := NewTokenBucket(2, 10)
	require.True(t, b.TryConsume(2))
	require.False(t, b.TryConsume(1))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, b.TryConsume(1), "one token should have refilled after 1/R seconds")
	assert.False(t, b.TryConsume(1), "only one token should have refilled")
}

func TestBucketNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	b := NewTokenBucket(3, 1000)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, b.Available(), 3.0)

	b.Return(100)
	assert.LessOrEqual(t, b.Available(), 3.0)
}

func TestConsumeWithTimeout(t *testing.T) {
	t.Parallel()

	b := NewTokenBucket(1, 20) // refills a token every 50ms
	require.True(t, b.TryConsume(1))

	start := time.Now()
	ok := b.ConsumeWithTimeout(1, time.Second)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// Drain again, then time out with a ceiling shorter than the refill.
	for b.TryConsume(1) {
	}
	slow := NewTokenBucket(1, 0.01)
	require.True(t, slow.TryConsume(1))
	assert.False(t, slow.ConsumeWithTimeout(1, 30*time.Millisecond))
}

func TestLimiterCategories(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	key, rpm := cfg.CategoryFor("gemini-2.5-pro")
	assert.Equal(t, "tier1:gemini-2.5-pro", key)
	assert.Equal(t, 150, rpm)

	// Versioned variant matches its base prefix, and the more specific
	// prefix wins over the shorter one.
	key, rpm = cfg.CategoryFor("gemini-2.0-flash-lite-001")
	assert.Equal(t, "tier1:gemini-2.0-flash-lite", key)
	assert.Equal(t, 4000, rpm)

	key, rpm = cfg.CategoryFor("some-unknown-model")
	assert.Equal(t, "tier1:default_unknown_model", key)
	assert.Equal(t, DefaultRPM, rpm)

	cfg.Overrides = map[string]int{"gemini-2.5-pro": 5}
	_, rpm = cfg.CategoryFor("gemini-2.5-pro")
	assert.Equal(t, 5, rpm)
}

func TestLimiterIndependentBuckets(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Overrides = map[string]int{"model-a": 1, "model-b": 1}
	cfg.WaitCeiling = 20 * time.Millisecond
	l := NewLimiter(cfg)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "model-a"))

	// model-a is drained, model-b is untouched.
	err := l.Acquire(ctx, "model-a")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NoError(t, l.Acquire(ctx, "model-b"))

	stats := l.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
	assert.Equal(t, 2, stats.Categories)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{Enabled: false})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background(), "anything"))
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Overrides = map[string]int{"m": 1}
	cfg.WaitCeiling = time.Minute
	l := NewLimiter(cfg)

	require.NoError(t, l.Acquire(context.Background(), "m"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx, "m")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
