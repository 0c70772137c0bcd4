package sheet

import "errors"

// Sentinel errors for sheet lookups.
var (
	ErrUnknownTable = errors.New("unknown table")
	ErrUnknownField = errors.New("unknown field")
)
