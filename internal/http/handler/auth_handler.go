package handler

import (
	"net/http"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/http/middleware"
	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.auth.SignUp(r.Context(), service.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, clientIP(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.signup", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusCreated, authResponse{User: result.User, Token: result.Token})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.signin", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusOK, authResponse{User: result.User, Token: result.Token})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token subject", nil)
		return
	}
	count, err := h.auth.SignOut(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.signout", "user_id", userID, "sessions_deactivated", count)
	response.JSON(w, r, http.StatusOK, map[string]int64{"sessions_deactivated": count})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "email verified"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Identical shape whether or not the email is registered.
	response.JSON(w, r, http.StatusOK, map[string]string{
		"message": "if the address is registered, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token subject", nil)
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.change_password", "user_id", userID)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	claims, err := h.auth.ValidateToken(req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"valid":      true,
		"subject":    claims.Subject,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt,
	})
}
