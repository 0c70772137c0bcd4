// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/salesgrid/internal/domain/types"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (types.StatsResponse, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	errs          errorWriter
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, errs errorWriter) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, errs: errs}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsProvider.Stats(r.Context())
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
