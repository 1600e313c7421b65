package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the Prometheus globals.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Fraud pass metrics
	IncrementFraudPasses(outcome string)
	RecordFraudPassDuration(duration time.Duration)
	IncrementVerdicts(reason string, n int)
	IncrementAlertsPersisted(n int)
	IncrementUnreconciledClicks(n int)

	// Suppression metrics
	IncrementSuppressionMutations(outcome string)
	IncrementNegativeKeywords(outcome string)

	// Ads API metrics
	IncrementAdsAPIRequests(operation, outcome string)
	RecordAdsAPILatency(operation string, duration time.Duration)

	// Rate limiting metrics
	IncrementRateLimitRequests(customerID string)
	IncrementRateLimitHits(customerID string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementFraudPasses(outcome string) {
	FraudPassCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordFraudPassDuration(duration time.Duration) {
	FraudPassDuration.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementVerdicts(reason string, n int) {
	VerdictCount.WithLabelValues(reason).Add(float64(n))
}

func (r *PrometheusRegistry) IncrementAlertsPersisted(n int) {
	AlertsPersisted.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementUnreconciledClicks(n int) {
	UnreconciledClicks.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementSuppressionMutations(outcome string) {
	SuppressionMutations.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementNegativeKeywords(outcome string) {
	NegativeKeywordsApplied.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAdsAPIRequests(operation, outcome string) {
	AdsAPIRequests.WithLabelValues(operation, outcome).Inc()
}

func (r *PrometheusRegistry) RecordAdsAPILatency(operation string, duration time.Duration) {
	AdsAPILatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(customerID string) {
	RateLimitRequests.WithLabelValues(customerID).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(customerID string) {
	RateLimitHits.WithLabelValues(customerID).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementFraudPasses(outcome string)                                  {}
func (r *NoOpRegistry) RecordFraudPassDuration(duration time.Duration)                       {}
func (r *NoOpRegistry) IncrementVerdicts(reason string, n int)                               {}
func (r *NoOpRegistry) IncrementAlertsPersisted(n int)                                       {}
func (r *NoOpRegistry) IncrementUnreconciledClicks(n int)                                    {}
func (r *NoOpRegistry) IncrementSuppressionMutations(outcome string)                         {}
func (r *NoOpRegistry) IncrementNegativeKeywords(outcome string)                             {}
func (r *NoOpRegistry) IncrementAdsAPIRequests(operation, outcome string)                    {}
func (r *NoOpRegistry) RecordAdsAPILatency(operation string, duration time.Duration)         {}
func (r *NoOpRegistry) IncrementRateLimitRequests(customerID string)                         {}
func (r *NoOpRegistry) IncrementRateLimitHits(customerID string)                             {}
