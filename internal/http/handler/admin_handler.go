package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/service"
)

type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	result, err := h.admin.ListUsers(r.Context(), repository.PageRequest{Page: page, PageSize: pageSize})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

type createUserRequest struct {
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	Role          string `json:"role"`
	Password      string `json:"password,omitempty"`
	ContactNumber string `json:"contact_number,omitempty"`
	Department    string `json:"department,omitempty"`
	Designation   string `json:"designation,omitempty"`
}

type createUserResponse struct {
	User *domain.User `json:"user"`
	// Relayed exactly once; the hash is all that survives server-side.
	TempPassword string `json:"temp_password,omitempty"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.admin.CreateUser(r.Context(), service.CreateUserInput{
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		Role:          req.Role,
		Password:      req.Password,
		ContactNumber: req.ContactNumber,
		Department:    req.Department,
		Designation:   req.Designation,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.create_user", "created_user_id", result.User.ID, "role", result.User.Role)
	response.JSON(w, r, http.StatusCreated, createUserResponse{
		User:         result.User,
		TempPassword: result.TempPassword,
	})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.admin.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.delete_user", "deleted_user_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "user deleted"})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.admin.UpdateRole(r.Context(), id, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.update_role", "target_user_id", id, "role", user.Role)
	response.JSON(w, r, http.StatusOK, user)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid user id", nil)
		return 0, false
	}
	return uint(id), true
}
