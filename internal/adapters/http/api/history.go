package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/salesgrid/internal/app"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
)

const dateLayout = "2006-01-02"

// HistoryHandler serves weekly archives and daily sales.
type HistoryHandler struct {
	deps Dependencies
	errs errorWriter
}

// HandleArchive returns the POST /api/weekly-archive handler. The caller
// must present the archive secret or an admin session.
func (h *HistoryHandler) HandleArchive(a *authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.deps.AuthorizeArchive(r.Header.Get(types.ArchiveSecretHeader)) {
			u, err := a.current(r)
			if err != nil {
				h.errs.write(r.Context(), w, err)
				return
			}
			if !u.IsAdmin() {
				h.errs.write(r.Context(), w, service.ErrForbidden)
				return
			}
		}
		table, err := tableParam(r)
		if err != nil {
			h.errs.write(r.Context(), w, err)
			return
		}
		resp, err := h.deps.ArchiveWeek(r.Context(), table)
		if err != nil {
			h.errs.write(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleWeeklyHistory handles GET /api/weekly-history. Without type both
// sheets are listed.
func (h *HistoryHandler) HandleWeeklyHistory(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	var table sheet.TableID
	if r.URL.Query().Get("type") != "" {
		t, err := tableParam(r)
		if err != nil {
			h.errs.write(r.Context(), w, err)
			return
		}
		table = t
	}
	out, err := h.deps.WeeklyHistory(r.Context(), table)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDailySales handles GET /api/daily-sales?from=&to=. Both default to today.
func (h *HistoryHandler) HandleDailySales(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	today := time.Now().Format(dateLayout)
	from, err := dateParam(r, "from", today)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	to, err := dateParam(r, "to", today)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	out, err := h.deps.DailySales(r.Context(), from, to)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	if out == nil {
		out = []model.DailySales{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSummary handles GET /api/summary?year=&month=. Both default to the
// current month.
func (h *HistoryHandler) HandleSummary(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	now := time.Now()
	year, err := intParam(r, "year", now.Year())
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	month, err := intParam(r, "month", int(now.Month()))
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	out, err := h.deps.MonthSummary(r.Context(), year, time.Month(month))
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func dateParam(r *http.Request, name, def string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		v = def
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, badRequest(fmt.Errorf("%s must be YYYY-MM-DD", name))
	}
	return t, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest(fmt.Errorf("%s must be a number", name))
	}
	return n, nil
}
