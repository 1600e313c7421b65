package api

import (
	"net/http"

	"github.com/patrickwarner/clickguard/internal/accounts"
	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/models"
)

// DashboardStatsHandler handles GET /api/dashboard/stats?ads_account_id=.
// The click chart and detection rate need a connected account; without one
// only alert statistics are returned.
func (s *Server) DashboardStatsHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	accountID := r.URL.Query().Get("ads_account_id")

	var svc adsapi.Service
	if accountID != "" {
		acct, err := s.Store.GetAccount(r.Context(), tenant, accountID)
		if err != nil {
			s.writeError(w, r, "Failed to load ads account.", err)
			return
		}
		if acct.State == models.StateConnected && !acct.Credentials.Empty() {
			svc = s.Ads.ForCustomer(accounts.APICredentials(acct, s.Config.AdsDeveloperToken))
		}
	}

	stats, err := s.Dashboard.Stats(r.Context(), tenant, accountID, svc)
	if err != nil {
		s.writeError(w, r, "Failed to fetch dashboard stats.", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
