package sheet

import "github.com/shopspring/decimal"

// Totals holds the aggregates of a snapshot. It is always derived from the
// cells and never updated incrementally.
type Totals struct {
	Rows    map[string]decimal.Decimal
	Columns map[Field]decimal.Decimal
	Grand   decimal.Decimal
}

// ComputeTotals derives row, column and grand totals from s.
func ComputeTotals(s Snapshot) Totals {
	t := Totals{
		Rows:    make(map[string]decimal.Decimal, len(s)),
		Columns: make(map[Field]decimal.Decimal, len(fields)),
		Grand:   decimal.Zero,
	}
	for _, f := range fields {
		t.Columns[f] = decimal.Zero
	}
	for entity, row := range s {
		rt := decimal.Zero
		for _, f := range fields {
			v := decimal.NewFromFloat(finite(row[f]))
			rt = rt.Add(v)
			t.Columns[f] = t.Columns[f].Add(v)
		}
		t.Rows[entity] = rt
		t.Grand = t.Grand.Add(rt)
	}
	return t
}

// Row returns the total of entity as float64.
func (t Totals) Row(entity string) float64 {
	return t.Rows[entity].InexactFloat64()
}

// Column returns the total of a field as float64.
func (t Totals) Column(f Field) float64 {
	return t.Columns[f].InexactFloat64()
}

// GrandTotal returns the sum of all cells as float64.
func (t Totals) GrandTotal() float64 {
	return t.Grand.InexactFloat64()
}
