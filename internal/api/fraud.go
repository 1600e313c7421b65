package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/models"
)

// FraudPassRequest is the payload for starting a fraud pass.
type FraudPassRequest struct {
	AdsAccountID   string   `json:"ads_account_id"`
	ClickThreshold *int     `json:"click_threshold,omitempty"`
	WindowHours    *float64 `json:"window_hours,omitempty"`
}

// FraudPassResponse is returned by a synchronous fraud pass.
type FraudPassResponse struct {
	Success        bool            `json:"success"`
	RunID          string          `json:"run_id"`
	RiskLevel      string          `json:"risk_level"`
	TotalAlerts    int             `json:"total_alerts"`
	HighRiskAlerts int             `json:"high_risk_alerts"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Threshold      int             `json:"threshold"`
	WindowStart    time.Time       `json:"window_start"`
	WindowEnd      time.Time       `json:"window_end"`
	Unreconciled   int             `json:"unreconciled"`
	Alerts         []models.Alert  `json:"alerts"`
}

// SyncResponse is returned when a background pass is accepted.
type SyncResponse struct {
	RunID     string `json:"run_id"`
	StatusURL string `json:"status_url"`
}

// FraudAnalyzeHandler handles POST /api/fraud/analyze. The pass runs to
// completion; IP suppression continues after the response.
func (s *Server) FraudAnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req FraudPassRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdsAccountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ads_account_id is required"})
		return
	}

	ctx, span := tracer.Start(r.Context(), "FraudAnalyzeHandler", trace.WithAttributes(
		attribute.String("tenant.id", tenant),
		attribute.String("ads_account.id", req.AdsAccountID),
	))
	defer span.End()

	res, err := s.Engine.RunFraudPass(ctx, tenant, req.AdsAccountID, fraud.PassOptions{
		ClickThreshold: req.ClickThreshold,
		WindowHours:    req.WindowHours,
	})
	if err != nil {
		s.writeError(w, r, "Failed to analyze fraud patterns.", err)
		return
	}

	writeJSON(w, http.StatusOK, FraudPassResponse{
		Success:        true,
		RunID:          res.RunID,
		RiskLevel:      res.RiskLevel,
		TotalAlerts:    len(res.Alerts),
		HighRiskAlerts: res.HighRiskCount,
		TotalCost:      res.TotalCost,
		Threshold:      res.Threshold,
		WindowStart:    res.WindowStart,
		WindowEnd:      res.WindowEnd,
		Unreconciled:   res.Unreconciled,
		Alerts:         res.Alerts,
	})
}

// FraudSyncHandler handles POST /api/fraud/sync by starting a background pass.
func (s *Server) FraudSyncHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req FraudPassRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdsAccountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ads_account_id is required"})
		return
	}

	runID, err := s.Runner.StartPass(r.Context(), tenant, req.AdsAccountID, fraud.PassOptions{
		ClickThreshold: req.ClickThreshold,
		WindowHours:    req.WindowHours,
	})
	if err != nil {
		s.writeError(w, r, "Failed to start sync.", err)
		return
	}
	writeJSON(w, http.StatusAccepted, SyncResponse{
		RunID:     runID,
		StatusURL: "/api/fraud/sync/" + req.AdsAccountID,
	})
}

// FraudSyncStatusHandler handles GET /api/fraud/sync/{account}.
func (s *Server) FraudSyncStatusHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	status, err := s.Runner.Status(r.Context(), tenant, mux.Vars(r)["account"])
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no sync has run for this account"})
		return
	}
	if err != nil {
		s.writeError(w, r, "Failed to read sync status.", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListAlertsHandler handles GET /api/fraud/alerts?ads_account_id=&days=&limit=.
func (s *Server) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	days, err := queryInt(q.Get("days"), 7)
	if err != nil || days < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid days"})
		return
	}
	limit, err := queryInt(q.Get("limit"), 100)
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}

	alerts, err := s.Store.ListAlerts(r.Context(), db.AlertFilter{
		TenantID:     tenant,
		AdsAccountID: q.Get("ads_account_id"),
		Since:        time.Now().UTC().AddDate(0, 0, -days),
		Limit:        limit,
	})
	if err != nil {
		s.writeError(w, r, "Failed to list alerts.", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
