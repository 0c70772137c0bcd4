package service

import (
	"errors"

	"github.com/okian/salesgrid/internal/adapters/repository"
)

// Sentinel errors returned by Service. The HTTP layer maps each to a status.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = repository.ErrNotFound
	ErrConflict     = repository.ErrConflict
)
