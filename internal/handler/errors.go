package handler

import (
	"net/http"

	"renopilot/internal/apperr"

	"github.com/labstack/echo/v4"
)

// writeError maps typed domain errors onto HTTP status codes. Conflicts on
// the action state machine surface as 409 so a double-approve is visible to
// the client instead of silently succeeding.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case apperr.IsConflict(err):
		status = http.StatusConflict
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsAuthExpired(err):
		status = http.StatusUnauthorized
	case apperr.IsTransient(err):
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}
