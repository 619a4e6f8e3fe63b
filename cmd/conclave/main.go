// Conclave server — serves the consultation HTTP API and dashboard
// event stream, runs provider health probes, and can instead expose the
// consult tool over MCP on stdio.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/conclave-ai/conclave/pkg/api"
	"github.com/conclave-ai/conclave/pkg/cleanup"
	"github.com/conclave-ai/conclave/pkg/config"
	"github.com/conclave-ai/conclave/pkg/database"
	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/health"
	"github.com/conclave-ai/conclave/pkg/mcpshell"
	"github.com/conclave-ai/conclave/pkg/projectctx"
	"github.com/conclave-ai/conclave/pkg/provider"
	"github.com/conclave-ai/conclave/pkg/services"
	"github.com/conclave-ai/conclave/pkg/slack"
	"github.com/conclave-ai/conclave/pkg/version"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	mcpMode := flag.Bool("mcp", false,
		"Serve the consult tool over MCP on stdio instead of the HTTP API")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting Conclave",
		"version", version.Full(),
		"config_dir", *configDir,
		"mcp_mode", *mcpMode)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"providers", stats.Providers,
		"agents", stats.Agents,
		"priced_models", stats.PricedModels)

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	consultationService := services.NewConsultationService(dbClient.Client)
	eventService := services.NewEventService(dbClient.Client)

	// 4. Provider registry and health monitor
	registry, err := provider.BuildRegistry(cfg)
	if err != nil {
		slog.Error("Failed to build provider registry", "error", err)
		os.Exit(1)
	}
	healthMonitor := health.NewMonitor(registry,
		events.NewPublisher(events.Default(), ""),
		health.Config{
			CheckInterval: cfg.Defaults.HealthCheckInterval(),
			ProbeTimeout:  cfg.Defaults.HealthCheckTimeout(),
			WindowSize:    cfg.Defaults.RollingWindowSize,
		})
	for _, id := range registry.IDs() {
		healthMonitor.Register(id)
	}
	healthMonitor.Start(ctx)
	defer healthMonitor.Stop()
	slog.Info("Health monitor started", "providers", len(registry.IDs()))

	// 5. Event delivery: store-and-forward persistence plus WebSocket fan-out
	eventPublisher := events.NewEventPublisher(dbClient.DB())
	connManager := events.NewConnectionManager(
		events.NewEventServiceAdapter(eventService), 10*time.Second)
	notifyListener := events.NewNotifyListener(dbConfig.DSN(), connManager)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("Failed to start NotifyListener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(ctx)
	connManager.SetListener(notifyListener)
	events.AttachHealthBridge(events.Default(), eventPublisher)
	slog.Info("Event infrastructure initialized")

	// 6. Slack notifications (optional)
	var slackService *slack.Service
	if cfg.Slack != nil && cfg.Slack.Enabled {
		slackService = slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.DashboardURL,
		})
		if slackService == nil {
			slog.Warn("Slack notifications enabled but token or channel missing",
				"token_env", cfg.Slack.TokenEnv)
		} else {
			slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
		}
	}

	// 7. Consultation engine
	contextLoader := projectctx.NewLoader(cfg.ProjectContext,
		os.Getenv(cfg.ProjectContext.TokenEnv))
	busHook := func(consultationID string, bus *events.Bus) {
		events.AttachBridge(bus, eventPublisher, consultationID)
		slack.AttachNotifier(bus, slackService, consultationID)
	}
	eng := engine.New(cfg, registry, healthMonitor, nil, contextLoader,
		dbClient.Client, busHook)
	slog.Info("Engine initialized")

	// 8. Retention sweeps
	cleanupService := cleanup.NewService(cfg.Retention, consultationService, eventService)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 9. MCP mode: serve stdio until the client hangs up, skip the HTTP server
	if *mcpMode {
		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		if err := mcpshell.NewShell(eng).Run(runCtx); err != nil {
			slog.Error("MCP server error", "error", err)
			os.Exit(1)
		}
		drainConsultations(eng, 30*time.Second, 5*time.Second)
		slog.Info("Shutdown complete")
		return
	}

	// 10. Create HTTP server
	httpServer := api.NewServer(cfg, dbClient, eng, consultationService)
	httpServer.SetHealthMonitor(healthMonitor)
	httpServer.SetConnectionManager(connManager)

	// 11. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Conclave started successfully")

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown: stop accepting requests, then drain active runs
	slog.Info("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	cancelShutdown()

	drainConsultations(eng, 30*time.Second, 5*time.Second)

	slog.Info("Shutdown complete")
}

// drainConsultations waits for active consultations to finish, then
// cancels whatever remains and gives the cancellations a short grace
// period to unwind.
func drainConsultations(eng *engine.Engine, drainTimeout, cancelGrace time.Duration) {
	if eng.Pool().Len() == 0 {
		return
	}
	slog.Info("Draining active consultations", "count", eng.Pool().Len())
	if waitForIdle(eng, drainTimeout) {
		slog.Info("All consultations drained")
		return
	}
	active := eng.Pool().ActiveIDs()
	slog.Warn("Drain timeout exceeded, cancelling active consultations",
		"count", len(active))
	for _, id := range active {
		if err := eng.Cancel(id); err != nil {
			slog.Error("Failed to cancel consultation",
				"consultation_id", id, "error", err)
		}
	}
	if !waitForIdle(eng, cancelGrace) {
		slog.Warn("Consultations still active at exit", "count", eng.Pool().Len())
	}
}

// waitForIdle polls the active-consultation pool until it empties or the
// timeout lapses.
func waitForIdle(eng *engine.Engine, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if eng.Pool().Len() == 0 {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return eng.Pool().Len() == 0
}
