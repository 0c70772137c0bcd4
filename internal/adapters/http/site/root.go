// Package site serves the browser pages: the static index and the TV board.
package site

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/pkg/logger"
)

// Error constants
var (
	ErrRender = errors.New("tv page render failed")
)

// tvRefreshSeconds is how often the TV page reloads itself.
const tvRefreshSeconds = 30

// BoardProvider projects a sheet for read-only display.
type BoardProvider interface {
	Board(ctx context.Context, table sheet.TableID) (grid.View, error)
}

// Register attaches the index page, static assets and the TV board to mux.
func Register(_ context.Context, mux *http.ServeMux, boards BoardProvider, log logger.Logger) {
	if mux == nil {
		panic("mux is nil")
	}
	if log == nil {
		log = logger.Nop()
	}

	mux.Handle("/", http.FileServer(FS()))
	mux.Handle("GET /tv", NewTVHandler(boards, log))
}

// TVHandler renders the auto-refreshing sales board.
type TVHandler struct {
	boards BoardProvider
	logger logger.Logger
}

// NewTVHandler creates a new TV handler.
func NewTVHandler(boards BoardProvider, log logger.Logger) *TVHandler {
	return &TVHandler{boards: boards, logger: log}
}

type tvPage struct {
	View    grid.View
	Tables  []sheet.TableID
	Refresh int
}

// ServeHTTP handles GET /tv?type=.
func (h *TVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table, err := sheet.ParseTable(r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := h.boards.Board(r.Context(), table)
	if err != nil {
		h.logger.Error(r.Context(), "tv board", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tvTemplate.Execute(&buf, tvPage{View: view, Tables: sheet.Tables(), Refresh: tvRefreshSeconds}); err != nil {
		h.logger.Error(r.Context(), "tv render", logger.Error(errors.Join(ErrRender, err)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

var tvTemplate = template.Must(template.New("tv.html").Funcs(template.FuncMap{
	"label": func(f sheet.Field) string { return f.Label() },
}).ParseFS(templateFS, "templates/tv.html"))
