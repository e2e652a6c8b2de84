package handler

import (
	"net/http"

	"github.com/pipelinecrm/crm-auth-service/internal/http/middleware"
	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/service"
)

type UserHandler struct {
	auth     *service.AuthService
	sessions *service.SessionService
}

func NewUserHandler(auth *service.AuthService, sessions *service.SessionService) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectFromRequest(w, r)
	if !ok {
		return
	}
	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectFromRequest(w, r)
	if !ok {
		return
	}
	views := h.sessions.ListActive(r.Context(), userID, middleware.TokenFromContext(r.Context()))
	response.JSON(w, r, http.StatusOK, views)
}

func (h *UserHandler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Cleanup(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.cleanup",
		"expired_removed", result.Expired,
		"stale_inactive_removed", result.StaleInactive,
	)
	response.JSON(w, r, http.StatusOK, result)
}

func subjectFromRequest(w http.ResponseWriter, r *http.Request) (uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return 0, false
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token subject", nil)
		return 0, false
	}
	return userID, true
}
