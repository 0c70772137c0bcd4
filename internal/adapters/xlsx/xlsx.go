// Package xlsx reads and writes the sales grid as an Excel workbook.
//
// Layout: one worksheet named after the table; a header row (seller, one
// column per weekday, total); one row per seller in display order; a final
// totals row.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
)

const (
	sellerHeader = "Vendedor"
	totalLabel   = "Total"
	moneyFormat  = "#,##0.00"
)

// Errors returned by Decode.
var (
	ErrEmptyWorkbook = errors.New("xlsx: workbook has no rows")
	ErrHeader        = errors.New("xlsx: header row not recognised")
)

// Encode writes table as a workbook to w. rows gives the display order.
func Encode(w io.Writer, table sheet.TableID, rows []model.Entity, cells sheet.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	name := string(table)
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return fmt.Errorf("xlsx: name sheet: %w", err)
	}

	fields := sheet.Fields()
	header := []any{sellerHeader}
	for _, fld := range fields {
		header = append(header, fld.Label())
	}
	header = append(header, totalLabel)
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: header: %w", err)
	}

	totals := sheet.ComputeTotals(cells)
	for i, e := range rows {
		row := []any{e.Username}
		for _, fld := range fields {
			row = append(row, cells.Get(e.Username, fld))
		}
		row = append(row, totals.Row(e.Username))
		if err := f.SetSheetRow(name, cell(1, i+2), &row); err != nil {
			return fmt.Errorf("xlsx: row %s: %w", e.Username, err)
		}
	}

	last := len(rows) + 2
	footer := []any{totalLabel}
	for _, fld := range fields {
		footer = append(footer, totals.Column(fld))
	}
	footer = append(footer, totals.GrandTotal())
	if err := f.SetSheetRow(name, cell(1, last), &footer); err != nil {
		return fmt.Errorf("xlsx: totals: %w", err)
	}

	if err := style(f, name, len(fields)+2, last); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

func style(f *excelize.File, name string, cols, last int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}
	numFmt := moneyFormat
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}
	boldMoney, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}

	for _, s := range []struct {
		from, to string
		id       int
	}{
		{cell(1, 1), cell(cols, 1), bold},
		{cell(2, 2), cell(cols, last), money},
		{cell(1, last), cell(1, last), bold},
		{cell(2, last), cell(cols, last), boldMoney},
	} {
		if err := f.SetCellStyle(name, s.from, s.to, s.id); err != nil {
			return fmt.Errorf("xlsx: apply style: %w", err)
		}
	}
	return f.SetColWidth(name, "A", "A", 24)
}

// Decode reads a workbook in the layout written by Encode from its first
// worksheet. The table is taken from the worksheet name when it names one.
// Weekday columns may be headed by their label (Seg) or name (monday); the
// total column and totals row are ignored. Values that do not parse are 0.
func Decode(r io.Reader) (sheet.TableID, sheet.Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, ErrEmptyWorkbook
	}
	name := sheets[0]
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, fmt.Errorf("xlsx: read %s: %w", name, err)
	}
	if len(rows) == 0 {
		return "", nil, ErrEmptyWorkbook
	}

	columns := map[int]sheet.Field{}
	for i, h := range rows[0] {
		if fld, ok := headerField(h); ok {
			columns[i] = fld
		}
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("%w: %v", ErrHeader, rows[0])
	}

	snap := sheet.Snapshot{}
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		entity := strings.TrimSpace(row[0])
		if entity == "" || strings.EqualFold(entity, totalLabel) {
			continue
		}
		snap.EnsureRow(entity)
		for i, fld := range columns {
			if i < len(row) {
				snap.Set(entity, fld, sheet.ParseValue(row[i]))
			}
		}
	}

	table, err := sheet.ParseTable(name)
	if err != nil {
		table = ""
	}
	return table, snap, nil
}

func headerField(h string) (sheet.Field, bool) {
	h = strings.TrimSpace(h)
	for _, fld := range sheet.Fields() {
		if strings.EqualFold(h, fld.Label()) || strings.EqualFold(h, string(fld)) {
			return fld, true
		}
	}
	return "", false
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
