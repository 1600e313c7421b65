package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/accounts"
	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/config"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/middleware"
	"github.com/patrickwarner/clickguard/internal/observability"
	"github.com/patrickwarner/clickguard/internal/reporting"
)

var tracer = otel.Tracer("clickguard/api")

// TenantHeader identifies the calling tenant. Authentication happens in
// front of this service.
const TenantHeader = "X-Tenant-ID"

// Pinger is a backend the readiness check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Engine    *fraud.Engine
	Runner    *fraud.Runner
	Accounts  *accounts.Service
	Dashboard *reporting.Dashboard
	Store     db.Store
	Ads       adsapi.Factory
	Metrics   observability.MetricsRegistry
	Config    config.Config
	// Backends are probed by /ready, keyed by name.
	Backends map[string]Pinger
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, engine *fraud.Engine, runner *fraud.Runner, accts *accounts.Service, dashboard *reporting.Dashboard, store db.Store, ads adsapi.Factory, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:    logger,
		Engine:    engine,
		Runner:    runner,
		Accounts:  accts,
		Dashboard: dashboard,
		Store:     store,
		Ads:       ads,
		Metrics:   metrics,
		Config:    cfg,
		Backends:  map[string]Pinger{},
	}
}

// Router registers every route on a new mux.Router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/health", s.instrument("health", s.HealthHandler)).Methods("GET")
	r.HandleFunc("/ready", s.instrument("ready", s.ReadyHandler)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/fraud/analyze", s.instrument("fraud_analyze", s.FraudAnalyzeHandler)).Methods("POST")
	api.HandleFunc("/fraud/sync", s.instrument("fraud_sync", s.FraudSyncHandler)).Methods("POST")
	api.HandleFunc("/fraud/sync/{account}", s.instrument("fraud_sync_status", s.FraudSyncStatusHandler)).Methods("GET")
	api.HandleFunc("/fraud/alerts", s.instrument("fraud_alerts", s.ListAlertsHandler)).Methods("GET")

	api.HandleFunc("/keywords/analyze", s.instrument("keywords_analyze", s.KeywordAnalyzeHandler)).Methods("POST")
	api.HandleFunc("/keywords/apply", s.instrument("keywords_apply", s.KeywordApplyHandler)).Methods("POST")

	api.HandleFunc("/accounts/validate", s.instrument("accounts_validate", s.ValidateAccountHandler)).Methods("POST")
	api.HandleFunc("/accounts/connect", s.instrument("accounts_connect", s.ConnectAccountHandler)).Methods("POST")
	api.HandleFunc("/accounts/disconnect", s.instrument("accounts_disconnect", s.DisconnectAccountHandler)).Methods("POST")

	api.HandleFunc("/settings", s.instrument("settings_get", s.GetSettingsHandler)).Methods("GET")
	api.HandleFunc("/settings", s.instrument("settings_put", s.PutSettingsHandler)).Methods("PUT")

	api.HandleFunc("/dashboard/stats", s.instrument("dashboard_stats", s.DashboardStatsHandler)).Methods("GET")
	return r
}

// Handler returns the router wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "clickguard")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency for endpoint.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(rec.status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}
}
