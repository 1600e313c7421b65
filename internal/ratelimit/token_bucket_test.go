package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/clickguard/internal/observability"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d", i+1)
	}
	assert.False(t, bucket.Allow())

	hits, total := bucket.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(6), total)
}

func TestTokenBucket_WaitRefills(t *testing.T) {
	bucket := NewTokenBucket(1, 20)
	require.True(t, bucket.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	waited, err := bucket.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, waited)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	bucket := NewTokenBucket(1, 1)
	require.True(t, bucket.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bucket.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCustomerLimiter_PerCustomerBuckets(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	limiter := NewCustomerLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, metrics)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "1111111111"))
	require.NoError(t, limiter.Wait(ctx, "2222222222"))

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(short, "1111111111"))

	stats := limiter.GetStats()
	assert.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats["1111111111"].Hits)
	assert.Equal(t, 1, metrics.Count("ratelimit_hits:1111111111"))
	assert.Equal(t, 0, metrics.Count("ratelimit_hits:2222222222"))
}

func TestCustomerLimiter_Disabled(t *testing.T) {
	limiter := NewCustomerLimiter(Config{Capacity: 0, RefillRate: 1, Enabled: false}, nil)
	for i := 0; i < 10; i++ {
		assert.NoError(t, limiter.Wait(context.Background(), "x"))
	}
	assert.Empty(t, limiter.GetStats())

	var nilLimiter *CustomerLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background(), "x"))
}
