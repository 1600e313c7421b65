package api

import (
	"net/http"

	"github.com/patrickwarner/clickguard/internal/models"
)

// GetSettingsHandler handles GET /api/settings. Tenants without stored
// settings get the service defaults.
func (s *Server) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	settings, found, err := s.Store.TenantSettings(r.Context(), tenant)
	if err != nil {
		s.writeError(w, r, "Failed to load settings.", err)
		return
	}
	if !found {
		settings = models.TenantSettings{
			TenantID:       tenant,
			ClickThreshold: s.Config.DefaultClickThreshold,
			WindowHours:    s.Config.DefaultWindowHours,
		}
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutSettingsHandler handles PUT /api/settings.
func (s *Server) PutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var settings models.TenantSettings
	if !decodeJSON(w, r, &settings) {
		return
	}
	settings.TenantID = tenant
	if err := settings.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid settings", Details: err.Error()})
		return
	}
	if err := s.Store.SaveTenantSettings(r.Context(), settings); err != nil {
		s.writeError(w, r, "Failed to save settings.", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
