package grid

import (
	"github.com/okian/salesgrid/internal/domain/access"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
)

// View is what a presentation layer renders: rows in display order with
// formatted values, sync states, totals and edit affordances.
type View struct {
	Table        sheet.TableID
	Fields       []sheet.Field
	Rows         []RowView
	ColumnTotals []Amount // aligned with Fields
	GrandTotal   Amount
	CanManage    bool
}

// RowView is one entity's row.
type RowView struct {
	Entity   model.Entity
	Cells    []CellView // aligned with Fields
	Total    Amount
	Editable bool
}

// CellView is one cell.
type CellView struct {
	Field    sheet.Field
	Amount   Amount
	State    SyncState
	Editable bool
}

// Amount is a value with its BRL rendering.
type Amount struct {
	Value float64
	Text  string
}

func amount(v float64) Amount {
	return Amount{Value: v, Text: sheet.FormatBRL(v)}
}

// View projects the table for principal p. Keys without metadata are skipped.
func (t *Table) View(p model.Principal, pol access.Policy) View {
	fields := sheet.Fields()
	totals := t.Totals()

	v := View{
		Table:        t.id,
		Fields:       fields,
		ColumnTotals: make([]Amount, len(fields)),
		GrandTotal:   amount(totals.GrandTotal()),
		CanManage:    pol.CanManageMembers(p),
	}
	for i, f := range fields {
		v.ColumnTotals[i] = amount(totals.Column(f))
	}

	for _, key := range t.order.Keys() {
		e, ok := t.entities[key]
		if !ok {
			continue
		}
		row := RowView{
			Entity: e,
			Cells:  make([]CellView, len(fields)),
			Total:  amount(totals.Row(key)),
		}
		for i, f := range fields {
			state, _ := t.State(key, f)
			editable := pol.CanEdit(p, t.id, key, f)
			row.Editable = row.Editable || editable
			row.Cells[i] = CellView{
				Field:    f,
				Amount:   amount(t.snapshot.Get(key, f)),
				State:    state,
				Editable: editable,
			}
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}
