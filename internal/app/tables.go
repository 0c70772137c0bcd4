package service

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/okian/salesgrid/internal/adapters/xlsx"
	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// Table returns the sellers and the stored cells of table.
func (s *Service) Table(ctx context.Context, table sheet.TableID) (types.TableResponse, error) {
	sellers, err := s.store.ListSellers(ctx)
	if err != nil {
		return types.TableResponse{}, err
	}
	cells, err := s.store.LoadCells(ctx, table)
	if err != nil {
		return types.TableResponse{}, err
	}
	for _, u := range sellers {
		cells.EnsureRow(u.Username)
	}
	if sellers == nil {
		sellers = []model.Entity{}
	}
	return types.TableResponse{Employees: sellers, Cells: cells}, nil
}

// SaveCell writes one cell on behalf of p. A request id already applied is
// acknowledged as a duplicate without writing again. Cells of accounts that
// are not sellers, including deleted ones, return ErrNotFound.
func (s *Service) SaveCell(ctx context.Context, p model.Principal, table sheet.TableID, c sheet.Cell, requestID string) (types.CellResponse, error) {
	if c.Entity == "" {
		return types.CellResponse{}, fmt.Errorf("%w: employee is required", ErrInvalidInput)
	}
	if !s.policy.CanEdit(p, table, c.Entity, c.Field) {
		return types.CellResponse{}, ErrForbidden
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return types.CellResponse{}, fmt.Errorf("%w: value must be finite", ErrInvalidInput)
	}

	key := ""
	if requestID != "" {
		key = string(table) + ":" + requestID
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordDuplicateSave()
			s.logger.Debug(ctx, "duplicate cell save", logger.String("requestID", requestID))
			return types.CellResponse{Success: true, Duplicate: true}, nil
		}
	}

	if err := s.store.SaveCell(ctx, table, c, s.now()); err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		return types.CellResponse{}, err
	}
	metrics.RecordCellWrites(string(table), "cell", 1)
	return types.CellResponse{Success: true}, nil
}

// SaveTable replaces the values present in snap. Admin only.
func (s *Service) SaveTable(ctx context.Context, p model.Principal, table sheet.TableID, snap sheet.Snapshot) (int, error) {
	if !p.Admin {
		return 0, ErrForbidden
	}
	n, err := s.store.SaveCells(ctx, table, snap.Sanitize(), s.now())
	if err != nil {
		return 0, err
	}
	metrics.RecordCellWrites(string(table), "bulk", n)
	s.logger.Info(ctx, "table saved", logger.String("table", string(table)), logger.Int("cells", n))
	return n, nil
}

// Board projects table for read-only displays such as the TV page.
func (s *Service) Board(ctx context.Context, table sheet.TableID) (grid.View, error) {
	data, err := s.Table(ctx, table)
	if err != nil {
		return grid.View{}, err
	}
	t := grid.New(table)
	t.ApplyRefresh(t.Mark(), data.Employees, data.Cells)
	return t.View(model.Principal{}, s.policy), nil
}

// Export writes table as an xlsx workbook to w.
func (s *Service) Export(ctx context.Context, table sheet.TableID, w io.Writer) error {
	data, err := s.Table(ctx, table)
	if err != nil {
		return err
	}
	return xlsx.Encode(w, table, data.Employees, data.Cells)
}
