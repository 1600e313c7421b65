package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clickguard_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// fraud passes labelled by outcome (ok, configuration, external_service, data_store, validation)
	FraudPassCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_fraud_passes_total",
			Help: "Total fraud detection passes",
		},
		[]string{"outcome"},
	)

	FraudPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clickguard_fraud_pass_duration_seconds",
			Help:    "Duration of fraud detection passes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// verdicts produced by the classifier, labelled by reason
	VerdictCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_verdicts_total",
			Help: "Total fraud verdicts produced",
		},
		[]string{"reason"},
	)

	AlertsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clickguard_alerts_persisted_total",
			Help: "Total fraud alerts written to the alert store",
		},
	)

	// verdicts dropped because reporting had no row for the click id
	UnreconciledClicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clickguard_unreconciled_clicks_total",
			Help: "Total verdicts without a matching cost report row",
		},
	)

	// campaign IP-block mutations labelled by outcome
	SuppressionMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_suppression_mutations_total",
			Help: "Total campaign IP exclusion mutations",
		},
		[]string{"outcome"},
	)

	NegativeKeywordsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_negative_keywords_total",
			Help: "Total negative keyword mutations",
		},
		[]string{"outcome"},
	)

	// ads API calls labelled by operation and outcome
	AdsAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_ads_api_requests_total",
			Help: "Total ads API requests",
		},
		[]string{"operation", "outcome"},
	)

	AdsAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clickguard_ads_api_duration_seconds",
			Help:    "Duration of ads API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// rate limit hits per ads customer
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_ratelimit_hits_total",
			Help: "Total rate limit waits per ads customer",
		},
		[]string{"customer_id"},
	)

	// rate limit requests per ads customer
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickguard_ratelimit_requests_total",
			Help: "Total rate limited requests per ads customer",
		},
		[]string{"customer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		FraudPassCount,
		FraudPassDuration,
		VerdictCount,
		AlertsPersisted,
		UnreconciledClicks,
		SuppressionMutations,
		NegativeKeywordsApplied,
		AdsAPIRequests,
		AdsAPILatency,
		RateLimitHits,
		RateLimitRequests,
	)
}
