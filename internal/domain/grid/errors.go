package grid

import "errors"

// Sentinel errors returned by Table.
var (
	ErrUnknownEntity = errors.New("entity is not displayed")
	ErrNotFailed     = errors.New("cell has no failed save")
)
