package api

import (
	"net/http"
)

// KeywordAnalyzeRequest is the payload for a waste analysis.
type KeywordAnalyzeRequest struct {
	AdsAccountID string `json:"ads_account_id"`
	DateRange    string `json:"date_range,omitempty"`
}

// KeywordApplyRequest is the payload for adding negative keywords.
type KeywordApplyRequest struct {
	AdsAccountID string   `json:"ads_account_id"`
	AdGroupID    string   `json:"ad_group_id"`
	Keywords     []string `json:"keywords"`
}

// KeywordAnalyzeHandler handles POST /api/keywords/analyze.
func (s *Server) KeywordAnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req KeywordAnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdsAccountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ads_account_id is required"})
		return
	}

	res, err := s.Engine.RunWasteAnalysis(r.Context(), tenant, req.AdsAccountID, req.DateRange)
	if err != nil {
		s.writeError(w, r, "Failed to analyze negative keywords.", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// KeywordApplyHandler handles POST /api/keywords/apply.
func (s *Server) KeywordApplyHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req KeywordApplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdsAccountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ads_account_id is required"})
		return
	}

	applied, err := s.Engine.ApplyNegativeKeywords(r.Context(), tenant, req.AdsAccountID, req.AdGroupID, req.Keywords)
	if err != nil {
		s.writeError(w, r, "Failed to add negative keywords.", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "applied": applied})
}
