// Package api exposes the HTTP surface: consultation submission and
// retrieval, provider health, liveness, and the WebSocket event stream.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-ai/conclave/pkg/config"
	"github.com/conclave-ai/conclave/pkg/database"
	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/health"
	"github.com/conclave-ai/conclave/pkg/services"
)

// Server wires the HTTP routes to the engine and the service layer.
type Server struct {
	cfg                 *config.Config
	dbClient            *database.Client
	engine              *engine.Engine
	consultationService *services.ConsultationService

	// Optional collaborators, set after construction.
	healthMonitor *health.Monitor
	connManager   *events.ConnectionManager

	echo       *echo.Echo
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Config, dbClient *database.Client, eng *engine.Engine, consultationService *services.ConsultationService) *Server {
	s := &Server{
		cfg:                 cfg,
		dbClient:            dbClient,
		engine:              eng,
		consultationService: consultationService,
		logger:              slog.Default().With("component", "api"),
	}

	s.echo = s.routes()
	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetHealthMonitor attaches the provider health monitor. Without it the
// providers/health endpoint reports unavailable.
func (s *Server) SetHealthMonitor(m *health.Monitor) {
	s.healthMonitor = m
}

// SetConnectionManager attaches the WebSocket connection manager. Without
// it the /ws endpoint reports unavailable.
func (s *Server) SetConnectionManager(m *events.ConnectionManager) {
	s.connManager = m
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.Use(recovery(s.logger))
	e.Use(requestLogger(s.logger))
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)

	v1 := e.Group("/api/v1")
	v1.POST("/consultations", s.submitConsultationHandler)
	v1.GET("/consultations", s.listConsultationsHandler)
	v1.GET("/consultations/active", s.activeConsultationsHandler)
	v1.GET("/consultations/:id", s.getConsultationHandler)
	v1.POST("/consultations/:id/cancel", s.cancelConsultationHandler)
	v1.GET("/providers/health", s.providersHealthHandler)

	return e
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called; returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on an existing listener. Used by tests that
// need an OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
