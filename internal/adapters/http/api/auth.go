package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/salesgrid/internal/app"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/types"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "salesgrid_session"

// SessionStore opens, resolves and closes login sessions.
type SessionStore interface {
	Login(ctx context.Context, username, password string) (model.Session, model.Entity, error)
	Authenticate(ctx context.Context, token string) (model.Entity, error)
	Logout(ctx context.Context, token string) error
}

// authedHandler receives the account the request was authenticated as.
type authedHandler func(w http.ResponseWriter, r *http.Request, user model.Entity)

type authenticator struct {
	sessions SessionStore
	errs     errorWriter
}

func (a *authenticator) current(r *http.Request) (model.Entity, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return model.Entity{}, service.ErrUnauthorized
	}
	return a.sessions.Authenticate(r.Context(), c.Value)
}

// user requires a valid session.
func (a *authenticator) user(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.current(r)
		if err != nil {
			a.errs.write(r.Context(), w, err)
			return
		}
		next(w, r, u)
	}
}

// admin requires a valid session of an admin account.
func (a *authenticator) admin(next authedHandler) http.HandlerFunc {
	return a.user(func(w http.ResponseWriter, r *http.Request, u model.Entity) {
		if !u.IsAdmin() {
			a.errs.write(r.Context(), w, service.ErrForbidden)
			return
		}
		next(w, r, u)
	})
}

// SessionHandler serves login, logout and session introspection.
type SessionHandler struct {
	sessions SessionStore
	secure   bool
	errs     errorWriter
}

// HandleMe handles GET /api/me. Anonymous callers get logged_in=false.
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	a := authenticator{sessions: h.sessions}
	u, err := a.current(r)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			writeJSON(w, http.StatusOK, types.MeResponse{})
			return
		}
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MeResponse{LoggedIn: true, User: u.Username, IsAdmin: u.IsAdmin()})
}

// HandleLogin handles POST /api/login.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	sess, u, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusUnauthorized, types.LoginResponse{Message: "Usuário ou senha inválidos"})
		return
	case err != nil:
		h.errs.write(r.Context(), w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, types.LoginResponse{Success: true, User: u.Username, IsAdmin: u.IsAdmin()})
}

// HandleLogout handles POST /api/logout. It succeeds without a session.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			h.errs.write(r.Context(), w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}
