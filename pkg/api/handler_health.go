package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-ai/conclave/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only conclave's own components (database) are checked. Advisor providers
// are excluded to prevent an orchestrator from restarting conclave when an
// external LLM service is down; their state lives on /api/v1/providers/health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.dbClient.Health(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:              status,
		Version:             version.GitCommit,
		ActiveConsultations: len(s.engine.Pool().ActiveIDs()),
		Checks:              checks,
	})
}

// providersHealthHandler handles GET /api/v1/providers/health.
func (s *Server) providersHealthHandler(c *echo.Context) error {
	if s.healthMonitor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "health monitoring not available")
	}

	return c.JSON(http.StatusOK, &ProvidersHealthResponse{
		Providers:  s.healthMonitor.GetAllHealthStatus(),
		AnyHealthy: s.healthMonitor.HasHealthyProviders(),
	})
}
