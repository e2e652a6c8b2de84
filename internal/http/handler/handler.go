package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
	"github.com/pipelinecrm/crm-auth-service/internal/service"
)

// writeServiceError maps the workflow error taxonomy onto the HTTP surface.
// Anything unrecognized becomes a generic 500; the detail only goes to the
// server log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.Error(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, service.ErrUnauthorized):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	case errors.Is(err, service.ErrInvalidActionToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token", nil)
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "operation not permitted", nil)
	case errors.Is(err, service.ErrNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, service.ErrDuplicateEmail):
		response.Error(w, r, http.StatusConflict, "DUPLICATE_EMAIL", "email already registered", nil)
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed request body", nil)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
