// Package sheet defines the weekly sales grid: the parallel tables, the fixed
// weekday fields, cells and snapshots.
package sheet

import (
	"fmt"
	"strings"
	"time"
)

// TableID selects one of the parallel sales sheets.
type TableID string

// Known tables.
const (
	TablePortabilidade TableID = "portabilidade"
	TableNovo          TableID = "novo"

	DefaultTable = TablePortabilidade
)

var tables = [...]TableID{TablePortabilidade, TableNovo}

// Tables lists every known table in a stable order.
func Tables() []TableID {
	out := make([]TableID, len(tables))
	copy(out, tables[:])
	return out
}

// ParseTable maps a sheet-type tag to a TableID. Empty selects DefaultTable.
func ParseTable(s string) (TableID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultTable, nil
	}
	for _, t := range tables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
}

// Field is a column of the grid.
type Field string

// The fixed field set, in display order.
const (
	Monday    Field = "monday"
	Tuesday   Field = "tuesday"
	Wednesday Field = "wednesday"
	Thursday  Field = "thursday"
	Friday    Field = "friday"
)

var fields = [...]Field{Monday, Tuesday, Wednesday, Thursday, Friday}

// Fields returns the field set in display order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields[:])
	return out
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// FieldForWeekday returns the field of a weekday; weekends have none.
func FieldForWeekday(d time.Weekday) (Field, bool) {
	if d < time.Monday || d > time.Friday {
		return "", false
	}
	return fields[d-time.Monday], true
}

// Label is the short column header used by the presentation layers.
func (f Field) Label() string {
	switch f {
	case Monday:
		return "Seg"
	case Tuesday:
		return "Ter"
	case Wednesday:
		return "Qua"
	case Thursday:
		return "Qui"
	case Friday:
		return "Sex"
	}
	return string(f)
}

// Cell is the atomic unit of edit and synchronisation.
type Cell struct {
	Entity string
	Field  Field
	Value  float64
}

// Row holds one entity's values.
type Row map[Field]float64

// Snapshot maps entity key to its row.
type Snapshot map[string]Row

// Get returns the value of a cell, zero when absent.
func (s Snapshot) Get(entity string, f Field) float64 {
	return s[entity][f]
}

// Set writes a cell, creating the row when needed.
func (s Snapshot) Set(entity string, f Field, v float64) {
	row, ok := s[entity]
	if !ok {
		row = make(Row, len(fields))
		s[entity] = row
	}
	row[f] = v
}

// EnsureRow creates an all-zero row for entity if it has none.
func (s Snapshot) EnsureRow(entity string) {
	if _, ok := s[entity]; ok {
		return
	}
	row := make(Row, len(fields))
	for _, f := range fields {
		row[f] = 0
	}
	s[entity] = row
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for e, row := range s {
		r := make(Row, len(row))
		for f, v := range row {
			r[f] = v
		}
		out[e] = r
	}
	return out
}

// Sanitize drops unknown fields and coerces non-finite values to zero.
func (s Snapshot) Sanitize() Snapshot {
	out := make(Snapshot, len(s))
	for e, row := range s {
		r := make(Row, len(fields))
		for _, f := range fields {
			r[f] = finite(row[f])
		}
		out[e] = r
	}
	return out
}
