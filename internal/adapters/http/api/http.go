// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the application service.
type Dependencies interface {
	SessionStore
	StatsProvider

	Table(ctx context.Context, table sheet.TableID) (types.TableResponse, error)
	SaveCell(ctx context.Context, p model.Principal, table sheet.TableID, c sheet.Cell, requestID string) (types.CellResponse, error)
	SaveTable(ctx context.Context, p model.Principal, table sheet.TableID, snap sheet.Snapshot) (int, error)
	Export(ctx context.Context, table sheet.TableID, w io.Writer) error

	ListUsers(ctx context.Context) ([]model.Entity, error)
	GetUser(ctx context.Context, id int64) (model.Entity, error)
	CreateUser(ctx context.Context, req types.CreateUserRequest) (model.Entity, error)
	UpdateUser(ctx context.Context, id int64, req types.UpdateUserRequest) (model.Entity, error)
	DeleteUser(ctx context.Context, caller model.Principal, id int64) error
	ChangePassword(ctx context.Context, caller model.Principal, id int64, password string) error

	AuthorizeArchive(secret string) bool
	ArchiveWeek(ctx context.Context, table sheet.TableID) (types.ArchiveResponse, error)
	WeeklyHistory(ctx context.Context, table sheet.TableID) ([]model.WeeklyArchive, error)
	DailySales(ctx context.Context, from, to time.Time) ([]model.DailySales, error)
	MonthSummary(ctx context.Context, year int, month time.Month) (types.SummaryResponse, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	sessionHandler *SessionHandler
	dataHandler    *DataHandler
	usersHandler   *UsersHandler
	historyHandler *HistoryHandler
	auth           *authenticator
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	secureCookie bool
	logger       logger.Logger
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(c *serverConfig) { c.secureCookie = secure }
}

// WithLogger sets the logger used for unexpected handler errors.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := serverConfig{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	errs := errorWriter{logger: cfg.logger}
	auth := &authenticator{sessions: deps, errs: errs}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps, errs),
		sessionHandler: &SessionHandler{sessions: deps, secure: cfg.secureCookie, errs: errs},
		dataHandler:    &DataHandler{deps: deps, errs: errs},
		usersHandler:   &UsersHandler{deps: deps, errs: errs},
		historyHandler: &HistoryHandler{deps: deps, errs: errs},
		auth:           auth,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	user, admin := s.auth.user, s.auth.admin

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /api/me", MetricsMiddleware(s.sessionHandler.HandleMe, "me"))
	mux.HandleFunc("POST /api/login", MetricsMiddleware(s.sessionHandler.HandleLogin, "login"))
	mux.HandleFunc("POST /api/logout", MetricsMiddleware(s.sessionHandler.HandleLogout, "logout"))

	mux.HandleFunc("GET /api/data", MetricsMiddleware(user(s.dataHandler.HandleGetTable), "data"))
	mux.HandleFunc("POST /api/data", MetricsMiddleware(admin(s.dataHandler.HandleSaveTable), "data"))
	mux.HandleFunc("POST /api/cell", MetricsMiddleware(user(s.dataHandler.HandleSaveCell), "cell"))
	mux.HandleFunc("GET /api/export", MetricsMiddleware(user(s.dataHandler.HandleExport), "export"))

	mux.HandleFunc("GET /api/users", MetricsMiddleware(admin(s.usersHandler.HandleList), "users"))
	mux.HandleFunc("POST /api/users", MetricsMiddleware(admin(s.usersHandler.HandleCreate), "users"))
	mux.HandleFunc("GET /api/users/{id}", MetricsMiddleware(admin(s.usersHandler.HandleGet), "user"))
	mux.HandleFunc("PUT /api/users/{id}", MetricsMiddleware(admin(s.usersHandler.HandleUpdate), "user"))
	mux.HandleFunc("DELETE /api/users/{id}", MetricsMiddleware(admin(s.usersHandler.HandleDelete), "user"))
	mux.HandleFunc("PUT /api/users/{id}/password", MetricsMiddleware(user(s.usersHandler.HandlePassword), "password"))

	mux.HandleFunc("POST /api/weekly-archive", MetricsMiddleware(s.historyHandler.HandleArchive(s.auth), "weekly_archive"))
	mux.HandleFunc("GET /api/weekly-history", MetricsMiddleware(user(s.historyHandler.HandleWeeklyHistory), "weekly_history"))
	mux.HandleFunc("GET /api/daily-sales", MetricsMiddleware(user(s.historyHandler.HandleDailySales), "daily_sales"))
	mux.HandleFunc("GET /api/summary", MetricsMiddleware(user(s.historyHandler.HandleSummary), "summary"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest(err)
	}
	return nil
}

func tableParam(r *http.Request) (sheet.TableID, error) {
	t, err := sheet.ParseTable(r.URL.Query().Get("type"))
	if err != nil {
		return "", badRequest(err)
	}
	return t, nil
}
