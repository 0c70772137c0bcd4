package sheet

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseValue coerces free-form user input into a cell value. Anything that
// does not parse as a number becomes 0 so editing never blocks on validation.
// Both "1234.5" and Brazilian "1.234,56" / "R$ 10,00" notations are accepted.
func ParseValue(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return finite(d.InexactFloat64())
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FormatBRL renders a value as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(v float64) string {
	return FormatDecimalBRL(decimal.NewFromFloat(finite(v)))
}

// FormatDecimalBRL renders a decimal as Brazilian currency.
func FormatDecimalBRL(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString("R$ ")
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}
