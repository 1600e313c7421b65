// Package ratelimit throttles outbound calls to the ads API.
//
// Each ads customer gets a token bucket: bursts up to the bucket capacity are
// sent immediately and sustained traffic is held to the refill rate, which
// keeps a single busy tenant from exhausting the shared developer-token quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a thread-safe token bucket rate limiter.
//
// The bucket has a fixed capacity and refills at a constant rate.
// Each call consumes one token.
type TokenBucket struct {
	capacity   int        // Maximum number of tokens the bucket can hold
	tokens     int        // Current number of tokens in the bucket
	refillRate int        // Number of tokens added per second
	lastRefill time.Time  // Last time tokens were added to the bucket
	mu         sync.Mutex // Protects all bucket state
	hitCount   int64      // Number of calls that found the bucket empty
	totalCount int64      // Total number of calls
}

// NewTokenBucket creates a full token bucket with the given capacity and
// refill rate in tokens per second.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	if refillRate < 1 {
		refillRate = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available and reports whether it did.
func (tb *TokenBucket) Allow() bool {
	ok, _ := tb.take()
	return ok
}

// Wait blocks until a token is available or ctx is done. It reports whether
// the caller had to wait at all.
func (tb *TokenBucket) Wait(ctx context.Context) (waited bool, err error) {
	for {
		ok, retryIn := tb.take()
		if ok {
			return waited, nil
		}
		waited = true
		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
		}
	}
}

// take refills, then tries to consume a token. When the bucket is empty it
// returns how long until the next token arrives.
func (tb *TokenBucket) take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int(elapsed.Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}

	tb.hitCount++
	perToken := time.Second / time.Duration(tb.refillRate)
	return false, perToken - elapsed%perToken
}

// Stats returns the number of calls that found the bucket empty and the
// total number of calls.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
