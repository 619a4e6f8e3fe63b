package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/services"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// mapEngineError maps engine facade errors to HTTP error responses.
// Deliberation errors (judge failure, timeout, cost rejection) never reach
// HTTP directly: submissions are asynchronous, so those land in the
// consultation row instead.
func mapEngineError(err error) *echo.HTTPError {
	if errors.Is(err, engine.ErrNotActive) {
		return echo.NewHTTPError(http.StatusConflict, "consultation is not active")
	}
	// Submission-time errors are validation failures.
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
