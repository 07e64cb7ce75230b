package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/portfolio-api/internal/application/auth"
	"github.com/portfolio-api/internal/application/user"
	"github.com/portfolio-api/internal/pkg/validate"
)

// UserHandler exposes the admin user surface.
type UserHandler struct {
	users   user.Service
	authSvc auth.Service
}

func NewUserHandler(users user.Service, authSvc auth.Service) *UserHandler {
	return &UserHandler{users: users, authSvc: authSvc}
}

// List returns a cursor-paginated page of users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := int64(0)
	if v := r.URL.Query().Get("per_page"); v != "" {
		limit, _ = strconv.ParseInt(v, 10, 32)
	}
	cursor := r.URL.Query().Get("cursor")

	users, next, err := h.users.List(r.Context(), int32(limit), cursor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	links := PageLinks{}
	if next != "" {
		links.Next = "/v1/users?cursor=" + next
	}
	writeJSON(w, http.StatusOK, PaginatedEnvelope{
		Status: "success",
		Data:   users,
		Meta:   PageMeta{PerPage: len(users), Count: len(users)},
		Links:  links,
	})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", u)
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// SetRole changes an account's role. Takes effect on the next issued
// token; the role gate reads the token claim.
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.authSvc.SetUserRole(r.Context(), chi.URLParam(r, "id"), req.Role); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "user role updated", nil)
}

type setStatusRequest struct {
	Active bool `json:"active"`
}

// SetStatus activates or deactivates an account. Deactivation takes
// effect at the authentication gate once the cached record is dropped.
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.authSvc.SetUserStatus(r.Context(), chi.URLParam(r, "id"), req.Active); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "user status updated", nil)
}
