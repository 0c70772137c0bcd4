package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/types"
)

// UsersHandler serves account management.
type UsersHandler struct {
	deps Dependencies
	errs errorWriter
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Errorf("invalid user id %q", r.PathValue("id")))
	}
	return id, nil
}

// HandleList handles GET /api/users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	users, err := h.deps.ListUsers(r.Context())
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleCreate handles POST /api/users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	var req types.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	u, err := h.deps.CreateUser(r.Context(), req)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleGet handles GET /api/users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	id, err := userID(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	u, err := h.deps.GetUser(r.Context(), id)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleUpdate handles PUT /api/users/{id}.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	id, err := userID(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	var req types.UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	u, err := h.deps.UpdateUser(r.Context(), id, req)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleDelete handles DELETE /api/users/{id}.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request, caller model.Entity) {
	id, err := userID(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	if err := h.deps.DeleteUser(r.Context(), caller.Principal(), id); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// HandlePassword handles PUT /api/users/{id}/password. Users may change
// their own password; admins any.
func (h *UsersHandler) HandlePassword(w http.ResponseWriter, r *http.Request, caller model.Entity) {
	id, err := userID(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	var req types.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	if err := h.deps.ChangePassword(r.Context(), caller.Principal(), id, req.NewPassword); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}
