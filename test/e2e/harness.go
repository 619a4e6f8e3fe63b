// Package e2e boots complete conclave instances against real PostgreSQL
// and exercises them over HTTP and WebSocket. Providers are scripted;
// everything else (engine, event plane, API) is the production wiring.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/pkg/api"
	"github.com/conclave-ai/conclave/pkg/artifact"
	"github.com/conclave-ai/conclave/pkg/config"
	"github.com/conclave-ai/conclave/pkg/cost"
	"github.com/conclave-ai/conclave/pkg/database"
	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/health"
	"github.com/conclave-ai/conclave/pkg/interact"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
	"github.com/conclave-ai/conclave/pkg/services"
	"github.com/conclave-ai/conclave/pkg/slack"
	testdb "github.com/conclave-ai/conclave/test/database"
	"github.com/conclave-ai/conclave/test/util"
)

// TestApp boots a complete conclave instance for e2e testing.
type TestApp struct {
	// Core
	Config    *config.Config
	DBClient  *database.Client
	EntClient *ent.Client

	// Test wiring
	Providers map[string]*ScriptedProvider

	// Real infrastructure
	Registry            *provider.Registry
	Engine              *engine.Engine
	ConsultationService *services.ConsultationService
	EventService        *services.EventService
	EventPublisher      *events.EventPublisher
	ConnManager         *events.ConnectionManager
	NotifyListener      *events.NotifyListener
	HealthMonitor       *health.Monitor
	Server              *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg          *config.Config
	providers    map[string]*ScriptedProvider
	extraEntries map[string]*provider.Entry
	prompter     interact.Prompter
	slackService *slack.Service
	sharedDB     *testdb.SharedTestDB // shared schema (for multi-replica tests)
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithProviders sets the scripted provider map. Defaults to
// HappyProviders when not given.
func WithProviders(providers map[string]*ScriptedProvider) TestAppOption {
	return func(c *testAppConfig) { c.providers = providers }
}

// WithExtraEntries registers additional provider entries (backup
// candidates for hedge tests) beyond the scripted map.
func WithExtraEntries(entries map[string]*provider.Entry) TestAppOption {
	return func(c *testAppConfig) { c.extraEntries = entries }
}

// WithPrompter installs a prompter for interactive runs driven directly
// through app.Engine. The HTTP surface never prompts, so tests using
// this call Consult rather than the API.
func WithPrompter(p interact.Prompter) TestAppOption {
	return func(c *testAppConfig) { c.prompter = p }
}

// WithSlackService attaches a Slack notification service to each
// consultation's bus. Used with a mock Slack API server.
func WithSlackService(svc *slack.Service) TestAppOption {
	return func(c *testAppConfig) { c.slackService = svc }
}

// WithSharedDB points the app at a shared schema instead of creating a
// per-test one. Used for multi-replica tests where several TestApp
// instances must observe each other's rows and NOTIFY traffic.
func WithSharedDB(shared *testdb.SharedTestDB) TestAppOption {
	return func(c *testAppConfig) { c.sharedDB = shared }
}

// NewTestApp creates and starts a full conclave test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = DefaultPanelConfig()
	}
	if tc.providers == nil {
		tc.providers = HappyProviders()
	}

	// 1. Database — per-test schema unless a shared one was injected.
	// The NotifyListener needs its own conn string: NOTIFY is global to
	// the database, so the base string works for per-test schemas, but
	// shared-schema tests pin search_path so both replicas agree.
	var dbClient *database.Client
	var listenerConnStr string
	if tc.sharedDB != nil {
		dbClient = tc.sharedDB.NewClient(t)
		listenerConnStr = tc.sharedDB.ConnStringWithSchema()
	} else {
		dbClient = testdb.NewTestClient(t)
		listenerConnStr = util.GetBaseConnectionString(t)
	}
	entClient := dbClient.Client

	// 2. Event publishing — real, backed by the test DB.
	eventPublisher := events.NewEventPublisher(dbClient.DB())

	// 3. Streaming infrastructure.
	eventService := services.NewEventService(entClient)
	adapter := events.NewEventServiceAdapter(eventService)
	connManager := events.NewConnectionManager(adapter, 5*time.Second)

	// 4. NotifyListener — real, dedicated pgx connection.
	notifyListener := events.NewNotifyListener(listenerConnStr, connManager)
	ctx := context.Background()
	require.NoError(t, notifyListener.Start(ctx))
	connManager.SetListener(notifyListener)

	// 5. Domain services.
	consultationService := services.NewConsultationService(entClient)

	// 6. Provider registry from the scripted map, tiers from config.
	entries := make(map[string]*provider.Entry, len(tc.providers))
	for id, p := range tc.providers {
		tier := models.TierStandard
		if pc, err := tc.cfg.GetProvider(id); err == nil {
			tier = pc.Tier
		}
		entries[id] = &provider.Entry{Provider: p, Tier: tier}
	}
	for id, e := range tc.extraEntries {
		entries[id] = e
	}
	registry := provider.NewRegistry(entries)

	// 7. Engine. The hedge manager sees every provider as healthy so
	// backup selection is deterministic; each consultation's bus gets
	// the store-and-forward bridge and, when configured, Slack.
	slackService := tc.slackService
	busHook := func(consultationID string, bus *events.Bus) {
		events.AttachBridge(bus, eventPublisher, consultationID)
		slack.AttachNotifier(bus, slackService, consultationID)
	}
	eng := engine.New(tc.cfg, registry, healthyStub{}, tc.prompter, nil, entClient, busHook)

	// 8. Health monitor for the providers/health endpoint. Registered
	// but never started: probes would consume scripted replies, so
	// every entry reports unknown.
	healthMonitor := health.NewMonitor(registry, events.NewPublisher(events.NewBus(), ""), health.DefaultConfig())
	for id := range entries {
		healthMonitor.Register(id)
	}

	// 9. HTTP server on a random port.
	server := api.NewServer(tc.cfg, dbClient, eng, consultationService)
	server.SetHealthMonitor(healthMonitor)
	server.SetConnectionManager(connManager)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()

	app := &TestApp{
		Config:              tc.cfg,
		DBClient:            dbClient,
		EntClient:           entClient,
		Providers:           tc.providers,
		Registry:            registry,
		Engine:              eng,
		ConsultationService: consultationService,
		EventService:        eventService,
		EventPublisher:      eventPublisher,
		ConnManager:         connManager,
		NotifyListener:      notifyListener,
		HealthMonitor:       healthMonitor,
		Server:              server,
		BaseURL:             fmt.Sprintf("http://%s", addr),
		WSURL:               fmt.Sprintf("ws://%s/ws", addr),
		t:                   t,
	}

	// Register cleanup in reverse-creation order. Background
	// consultations are cancelled first so their bridge writes stop
	// before the event plane goes away.
	t.Cleanup(func() {
		for _, id := range eng.Pool().ActiveIDs() {
			_ = eng.Cancel(id)
		}
		app.WaitForIdle(5 * time.Second)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		notifyListener.Stop(context.Background())
		// DB cleanup handled by testdb.NewTestClient/SetupTestDatabase
	})

	return app
}

// WaitForIdle blocks until the engine has no active consultations, or
// the timeout passes.
func (app *TestApp) WaitForIdle(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if app.Engine.Pool().Len() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// DefaultPanelConfig builds the standard test panel: architect,
// pragmatist and skeptic on their own providers, plus a judge provider.
// The gate sits far above scripted costs and the hedge delay far above
// scripted latencies, so neither engages unless a test tightens them.
func DefaultPanelConfig() *config.Config {
	panel := []*config.AgentConfig{
		{ID: "architect", DisplayName: "Architect", Provider: "prov-a"},
		{ID: "pragmatist", DisplayName: "Pragmatist", Provider: "prov-b"},
		{ID: "skeptic", DisplayName: "Skeptic", Provider: "prov-c"},
	}
	provCfgs := map[string]*config.ProviderConfig{
		"prov-a":     {Kind: config.ProviderKindOpenAI, Model: "gpt-5-mini", Tier: models.TierStandard},
		"prov-b":     {Kind: config.ProviderKindAnthropic, Model: "claude-haiku-3-5", Tier: models.TierStandard},
		"prov-c":     {Kind: config.ProviderKindGemini, Model: "gemini-2.5-flash", Tier: models.TierStandard},
		"prov-judge": {Kind: config.ProviderKindOpenAI, Model: "gpt-5", Tier: models.TierPremium},
	}

	gate := 100.0
	return &config.Config{
		Defaults: &config.Defaults{
			Mode:         models.ModeConsult,
			CostGateUSD:  &gate,
			HedgeDelayMS: 60000,
		},
		Judge:            &config.JudgeConfig{Provider: "prov-judge"},
		FilterCaps:       artifact.DefaultCaps(),
		Prices:           cost.DefaultPrices(),
		ProviderRegistry: config.NewProviderRegistry(provCfgs),
		AgentRegistry:    config.NewAgentRegistry(panel),
	}
}
