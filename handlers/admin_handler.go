package handlers

import (
	"net/http"
	"strings"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/Dosada05/dinor-predictions/services"
)

type AdminUserHandler struct {
	adminUserService services.AdminUserService
}

func NewAdminUserHandler(s services.AdminUserService) *AdminUserHandler {
	return &AdminUserHandler{adminUserService: s}
}

// ListUsers обрабатывает GET /admin/users?search=&role=&page=&limit=
func (h *AdminUserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", services.DefaultUserPageSize)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := models.UserFilter{
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
	if role := strings.TrimSpace(q.Get("role")); role != "" {
		userRole := models.UserRole(role)
		filter.Role = &userRole
	}

	res, err := h.adminUserService.ListUsers(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, res, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
