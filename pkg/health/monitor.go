// Package health tracks provider availability with periodic background
// probes. The hedge manager consults it when picking backup providers;
// the API exposes it for dashboards.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// ErrNotRegistered is returned when a probe is requested for a provider
// the monitor has never been told about. Always surfaced, never
// swallowed: an unregistered probe is a programming error.
var ErrNotRegistered = errors.New("provider not registered with health monitor")

// Config holds the monitor's probe cadence and classification
// thresholds. Zero fields are replaced by defaults.
type Config struct {
	CheckInterval     time.Duration // probe wave cadence
	ProbeTimeout      time.Duration // hard per-probe timeout
	WindowSize        int           // rolling result window length
	HealthyLatency    time.Duration // below this a success is Healthy
	UnhealthyLatency  time.Duration // at or above this a success is Unhealthy
	UnhealthyFailures int           // consecutive failures forcing Unhealthy
}

// DefaultConfig returns the standard probe settings.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     30 * time.Second,
		ProbeTimeout:      10 * time.Second,
		WindowSize:        10,
		HealthyLatency:    3 * time.Second,
		UnhealthyLatency:  10 * time.Second,
		UnhealthyFailures: 3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.WindowSize <= 0 {
		c.WindowSize = def.WindowSize
	}
	if c.HealthyLatency <= 0 {
		c.HealthyLatency = def.HealthyLatency
	}
	if c.UnhealthyLatency <= 0 {
		c.UnhealthyLatency = def.UnhealthyLatency
	}
	if c.UnhealthyFailures <= 0 {
		c.UnhealthyFailures = def.UnhealthyFailures
	}
	return c
}

// record pairs a provider's current classification with its rolling
// probe window (true = success).
type record struct {
	health models.ProviderHealth
	window []bool
}

// Monitor periodically probes registered providers and classifies each
// as Healthy, Degraded, Unhealthy, or Unknown. Probes for distinct
// providers run in parallel; the monitor never blocks a consultation.
type Monitor struct {
	registry  *provider.Registry
	publisher *events.Publisher
	config    Config

	records   map[string]*record
	recordsMu sync.RWMutex

	// inflight dedupes concurrent probes of the same provider.
	inflight   map[string]bool
	inflightMu sync.Mutex

	// waveRunning prevents overlapping probe waves when a wave outlasts
	// the tick interval.
	waveRunning atomic.Bool

	paused         atomic.Bool
	firstCheckDone atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewMonitor creates a monitor over the given provider registry.
// publisher may be nil (events are then dropped).
func NewMonitor(registry *provider.Registry, publisher *events.Publisher, cfg Config) *Monitor {
	return &Monitor{
		registry:  registry,
		publisher: publisher,
		config:    cfg.withDefaults(),
		records:   make(map[string]*record),
		inflight:  make(map[string]bool),
		logger:    slog.Default(),
	}
}

// Register adds a provider to the monitored set. Idempotent: a second
// registration leaves the existing record (and its history) untouched.
// New records start Unknown with a zero last-checked time.
func (m *Monitor) Register(providerID string) {
	m.recordsMu.Lock()
	defer m.recordsMu.Unlock()
	if _, exists := m.records[providerID]; exists {
		return
	}
	m.records[providerID] = &record{
		health: models.ProviderHealth{
			ProviderID: providerID,
			Status:     models.HealthStateUnknown,
		},
	}
}

// Start launches the background probe loop. The first wave runs
// immediately; calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return // already started
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.loop(ctx)

	m.logger.Info("Health monitor started",
		"interval", m.config.CheckInterval,
		"probe_timeout", m.config.ProbeTimeout,
		"providers", len(m.registeredIDs()))
}

// Stop halts probing and waits for in-flight work to finish. Records
// survive Stop: registration state is not probe state. After Stop
// returns, Start may be called again.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.logger.Info("Health monitor stopped")
}

// Pause suppresses user-facing degradation warnings. Probing and
// classification continue; only the log noise stops. Used while an
// interactive prompt is on screen.
func (m *Monitor) Pause() {
	m.paused.Store(true)
}

// Resume re-enables degradation warnings.
func (m *Monitor) Resume() {
	m.paused.Store(false)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.checkAll(ctx)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every registered provider in parallel and waits for
// the wave to settle. A wave still running when the next tick fires
// causes that tick to be skipped rather than overlapped.
func (m *Monitor) checkAll(ctx context.Context) {
	if !m.waveRunning.CompareAndSwap(false, true) {
		m.logger.Debug("Health check wave still running, skipping tick")
		return
	}
	defer m.waveRunning.Store(false)

	ids := m.registeredIDs()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(providerID string) {
			defer wg.Done()
			if err := m.CheckProvider(ctx, providerID); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Debug("Health probe error", "provider", providerID, "error", err)
			}
		}(id)
	}
	wg.Wait()

	m.firstCheckDone.Store(true)
}

// CheckProvider runs one probe against a provider with a hard timeout.
// When a probe for the same provider is already in flight the duplicate
// returns immediately. Unregistered providers return ErrNotRegistered.
func (m *Monitor) CheckProvider(ctx context.Context, providerID string) error {
	m.recordsMu.RLock()
	_, registered := m.records[providerID]
	m.recordsMu.RUnlock()
	if !registered {
		return fmt.Errorf("%w: %s", ErrNotRegistered, providerID)
	}

	m.inflightMu.Lock()
	if m.inflight[providerID] {
		m.inflightMu.Unlock()
		return nil // probe already in flight
	}
	m.inflight[providerID] = true
	m.inflightMu.Unlock()
	defer func() {
		m.inflightMu.Lock()
		delete(m.inflight, providerID)
		m.inflightMu.Unlock()
	}()

	m.publisher.HealthCheckStarted(providerID)

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := m.probe(probeCtx, providerID)
	latency := time.Since(start)

	// Shutdown mid-probe must not be recorded as a provider failure.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.UpdateStatus(providerID, err == nil, latency)
	return nil
}

// probe performs the actual reachability check. A provider exposing the
// HealthChecker capability is asked directly; otherwise a minimal ping
// chat is sent, preferring the cheap model variant when one is mapped
// and retrying once against the default model on cheap failure.
func (m *Monitor) probe(ctx context.Context, providerID string) error {
	entry, err := m.registry.Get(providerID)
	if err != nil {
		return err
	}

	if checker, ok := entry.Provider.(provider.HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}

	ping := &provider.ChatRequest{
		Messages:  []provider.Message{{Role: "user", Content: "ping"}},
		MaxTokens: 8,
	}
	if entry.CheapModel != "" {
		cheap := *ping
		cheap.Model = entry.CheapModel
		if _, err := entry.Provider.Chat(ctx, &cheap); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return err
		}
		// Cheap variant failed; fall through to the default model.
	}
	_, err = entry.Provider.Chat(ctx, ping)
	return err
}

// UpdateStatus records one probe outcome and recomputes the provider's
// classification:
//
//	success, latency < healthy threshold  → Healthy
//	success, latency below unhealthy      → Degraded
//	success, latency at/over unhealthy    → Unhealthy
//	failure, streak at/over threshold     → Unhealthy
//	failure otherwise                     → Degraded
//
// A status_updated event fires only when the classification changes.
func (m *Monitor) UpdateStatus(providerID string, success bool, latency time.Duration) {
	m.recordsMu.Lock()
	rec, ok := m.records[providerID]
	if !ok {
		m.recordsMu.Unlock()
		return
	}

	rec.window = append(rec.window, success)
	if len(rec.window) > m.config.WindowSize {
		rec.window = rec.window[len(rec.window)-m.config.WindowSize:]
	}
	failures := 0
	for _, s := range rec.window {
		if !s {
			failures++
		}
	}

	if success {
		rec.health.ConsecutiveFailures = 0
	} else {
		rec.health.ConsecutiveFailures++
	}

	var next models.HealthState
	var reason string
	switch {
	case success && latency < m.config.HealthyLatency:
		next = models.HealthStateHealthy
		reason = fmt.Sprintf("probe succeeded in %s", latency.Round(time.Millisecond))
	case success && latency < m.config.UnhealthyLatency:
		next = models.HealthStateDegraded
		reason = fmt.Sprintf("slow probe: %s", latency.Round(time.Millisecond))
	case success:
		next = models.HealthStateUnhealthy
		reason = fmt.Sprintf("very slow probe: %s", latency.Round(time.Millisecond))
	case rec.health.ConsecutiveFailures >= m.config.UnhealthyFailures:
		next = models.HealthStateUnhealthy
		reason = fmt.Sprintf("%d consecutive failures", rec.health.ConsecutiveFailures)
	default:
		next = models.HealthStateDegraded
		reason = fmt.Sprintf("probe failed (%d consecutive)", rec.health.ConsecutiveFailures)
	}

	previous := rec.health.Status
	rec.health.Status = next
	rec.health.LastChecked = time.Now()
	rec.health.LatencyMs = latency.Milliseconds()
	rec.health.ErrorRate = float64(failures) / float64(len(rec.window))
	m.recordsMu.Unlock()

	if previous == next {
		return
	}

	m.publisher.HealthStatusUpdated(providerID, previous, next, reason)

	if next == models.HealthStateUnhealthy || next == models.HealthStateDegraded {
		if !m.paused.Load() {
			m.logger.Warn("Provider health degraded",
				"provider", providerID, "previous", previous, "status", next, "reason", reason)
		}
	} else {
		m.logger.Info("Provider health recovered",
			"provider", providerID, "previous", previous, "status", next)
	}
}

// GetHealth returns a copy of one provider's health record.
func (m *Monitor) GetHealth(providerID string) (*models.ProviderHealth, error) {
	m.recordsMu.RLock()
	defer m.recordsMu.RUnlock()
	rec, ok := m.records[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, providerID)
	}
	cp := rec.health
	return &cp, nil
}

// GetAllHealthStatus returns copies of every provider's health record.
func (m *Monitor) GetAllHealthStatus() map[string]*models.ProviderHealth {
	m.recordsMu.RLock()
	defer m.recordsMu.RUnlock()
	result := make(map[string]*models.ProviderHealth, len(m.records))
	for id, rec := range m.records {
		cp := rec.health
		result[id] = &cp
	}
	return result
}

// HasHealthyProviders reports whether at least one provider is Healthy.
func (m *Monitor) HasHealthyProviders() bool {
	m.recordsMu.RLock()
	defer m.recordsMu.RUnlock()
	for _, rec := range m.records {
		if rec.health.IsHealthy() {
			return true
		}
	}
	return false
}

// HasCompletedFirstCheck reports whether the initial probe wave has
// settled. Callers that want health-informed backup selection can wait
// on this before the first consultation.
func (m *Monitor) HasCompletedFirstCheck() bool {
	return m.firstCheckDone.Load()
}

func (m *Monitor) registeredIDs() []string {
	m.recordsMu.RLock()
	defer m.recordsMu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}
