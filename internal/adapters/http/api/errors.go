package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/salesgrid/internal/app"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/pkg/logger"
)

// ErrBadRequest marks malformed requests.
var ErrBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}

// errorWriter translates service errors into HTTP responses.
type errorWriter struct {
	logger logger.Logger
}

func (e errorWriter) write(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		e.logger.Error(ctx, "request failed", logger.Error(err))
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, sheet.ErrUnknownTable),
		errors.Is(err, sheet.ErrUnknownField):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
