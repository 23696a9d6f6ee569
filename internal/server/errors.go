// Package server provides the admin and trigger HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonathan/seo-autopilot/internal/schedule"
	"github.com/jonathan/seo-autopilot/internal/types"
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the request conflicts with stored state.
var ErrConflict = errors.New("conflict")

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case types.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
