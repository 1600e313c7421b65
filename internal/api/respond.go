package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/accounts"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/middleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json", Details: err.Error()})
		return false
	}
	return true
}

// tenantID reads the tenant header, writing a 400 when it is missing.
func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(TenantHeader)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing " + TenantHeader + " header"})
		return "", false
	}
	return id, true
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	var se *fraud.StageError
	if errors.As(err, &se) {
		switch se.Kind {
		case fraud.KindValidation:
			return http.StatusBadRequest
		case fraud.KindConfiguration:
			return http.StatusUnprocessableEntity
		case fraud.KindConflict:
			return http.StatusConflict
		case fraud.KindExternalService:
			return http.StatusBadGateway
		case fraud.KindDataStore:
			return http.StatusServiceUnavailable
		}
	}
	var ve *accounts.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError logs err and writes it with the mapped status. summary is the
// user-facing message unless err carries its own.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, summary string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: summary, Details: err.Error()}

	var se *fraud.StageError
	if errors.As(err, &se) {
		resp.Kind = string(se.Kind)
		resp.Stage = se.Stage
	}
	var ve *accounts.ValidationError
	if errors.As(err, &ve) {
		resp.Error = ve.Message
		resp.Details = ""
	}

	log := middleware.LoggerFromRequest(r, s.Logger)
	if status >= http.StatusInternalServerError {
		log.Error(summary, zap.Int("status", status), zap.Error(err))
	} else {
		log.Info(summary, zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}
