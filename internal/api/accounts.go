package api

import (
	"net/http"

	"github.com/patrickwarner/clickguard/internal/accounts"
	"github.com/patrickwarner/clickguard/internal/models"
)

// DisconnectRequest is the payload for disconnecting an account.
type DisconnectRequest struct {
	AdsAccountID string `json:"ads_account_id"`
}

// AccountResponse wraps a connected account.
type AccountResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Account *models.AdsAccount `json:"account"`
}

// ValidateAccountHandler handles POST /api/accounts/validate.
func (s *Server) ValidateAccountHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req accounts.ConnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TenantID = tenant

	v, err := s.Accounts.Validate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Customer ID validation failed.", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Customer ID is valid.",
		"validation": v,
	})
}

// ConnectAccountHandler handles POST /api/accounts/connect.
func (s *Server) ConnectAccountHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req accounts.ConnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TenantID = tenant

	acct, err := s.Accounts.Connect(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "Failed to save ads account connection.", err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		Success: true,
		Message: "Ads account connected successfully",
		Account: acct,
	})
}

// DisconnectAccountHandler handles POST /api/accounts/disconnect.
func (s *Server) DisconnectAccountHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req DisconnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdsAccountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ads_account_id is required"})
		return
	}

	if err := s.Accounts.Disconnect(r.Context(), tenant, req.AdsAccountID); err != nil {
		s.writeError(w, r, "Failed to disconnect ads account.", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
