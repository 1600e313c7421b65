package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/patrickwarner/clickguard/internal/observability"
)

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// CustomerLimiter keeps one token bucket per ads customer id, created lazily
// on first use.
type CustomerLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

// NewCustomerLimiter creates a limiter with the given configuration.
func NewCustomerLimiter(config Config, metrics observability.MetricsRegistry) *CustomerLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &CustomerLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Wait blocks until a call for customerID may proceed. It returns ctx.Err()
// if the context ends first. A disabled or nil limiter never blocks.
func (l *CustomerLimiter) Wait(ctx context.Context, customerID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	l.metrics.IncrementRateLimitRequests(customerID)

	waited, err := l.bucket(customerID).Wait(ctx)
	if waited {
		l.metrics.IncrementRateLimitHits(customerID)
	}
	if err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", customerID, err)
	}
	return nil
}

func (l *CustomerLimiter) bucket(customerID string) *TokenBucket {
	l.mu.RLock()
	bucket, exists := l.buckets[customerID]
	l.mu.RUnlock()
	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, exists = l.buckets[customerID]
	if !exists {
		bucket = NewTokenBucket(l.config.Capacity, l.config.RefillRate)
		l.buckets[customerID] = bucket
	}
	return bucket
}

// GetStats returns a snapshot of per-customer statistics.
func (l *CustomerLimiter) GetStats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]Stats, len(l.buckets))
	for id, bucket := range l.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[id] = Stats{CustomerID: id, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// Stats describes rate limiting activity for one ads customer.
type Stats struct {
	CustomerID string  `json:"customer_id"`
	Hits       int64   `json:"hits"`
	Total      int64   `json:"total"`
	HitRate    float64 `json:"hit_rate"`
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	return fmt.Sprintf("customer %s: %d/%d hits (%.2f%%)", s.CustomerID, s.Hits, s.Total, s.HitRate*100)
}
