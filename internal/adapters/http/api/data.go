package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DataHandler serves the sales sheets.
type DataHandler struct {
	deps Dependencies
	errs errorWriter
}

// HandleGetTable handles GET /api/data?type=.
func (h *DataHandler) HandleGetTable(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	table, err := tableParam(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	resp, err := h.deps.Table(r.Context(), table)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSaveTable handles POST /api/data?type=.
func (h *DataHandler) HandleSaveTable(w http.ResponseWriter, r *http.Request, u model.Entity) {
	table, err := tableParam(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	var req types.BulkSaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	if _, err := h.deps.SaveTable(r.Context(), u.Principal(), table, req.Cells); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// HandleSaveCell handles POST /api/cell.
func (h *DataHandler) HandleSaveCell(w http.ResponseWriter, r *http.Request, u model.Entity) {
	var req types.CellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	table, err := sheet.ParseTable(req.SheetType)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	field, err := sheet.ParseField(req.Day)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	employee := strings.TrimSpace(req.Employee)
	if employee == "" {
		h.errs.write(r.Context(), w, badRequest(fmt.Errorf("missing employee")))
		return
	}

	resp, err := h.deps.SaveCell(r.Context(), u.Principal(), table,
		sheet.Cell{Entity: employee, Field: field, Value: req.Value},
		r.Header.Get(types.RequestIDHeader))
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleExport handles GET /api/export?type=.
func (h *DataHandler) HandleExport(w http.ResponseWriter, r *http.Request, _ model.Entity) {
	table, err := tableParam(r)
	if err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.deps.Export(r.Context(), table, &buf); err != nil {
		h.errs.write(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, table))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
