package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments in memory so tests can
// assert on them. Latency observations are ignored.
type MockMetricsRegistry struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counters: make(map[string]int)}
}

func (m *MockMetricsRegistry) add(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	m.counters[key] += n
}

// Count returns the accumulated value for a counter key such as
// "fraud_passes:ok" or "alerts_persisted".
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.add("requests:"+endpoint+":"+status, 1)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementFraudPasses(outcome string) {
	m.add("fraud_passes:"+outcome, 1)
}
func (m *MockMetricsRegistry) RecordFraudPassDuration(duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementVerdicts(reason string, n int) {
	m.add("verdicts:"+reason, n)
}
func (m *MockMetricsRegistry) IncrementAlertsPersisted(n int) { m.add("alerts_persisted", n) }
func (m *MockMetricsRegistry) IncrementUnreconciledClicks(n int) {
	m.add("unreconciled_clicks", n)
}
func (m *MockMetricsRegistry) IncrementSuppressionMutations(outcome string) {
	m.add("suppression_mutations:"+outcome, 1)
}
func (m *MockMetricsRegistry) IncrementNegativeKeywords(outcome string) {
	m.add("negative_keywords:"+outcome, 1)
}
func (m *MockMetricsRegistry) IncrementAdsAPIRequests(operation, outcome string) {
	m.add("ads_api:"+operation+":"+outcome, 1)
}
func (m *MockMetricsRegistry) RecordAdsAPILatency(operation string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(customerID string) {
	m.add("ratelimit_requests:"+customerID, 1)
}
func (m *MockMetricsRegistry) IncrementRateLimitHits(customerID string) {
	m.add("ratelimit_hits:"+customerID, 1)
}
