package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// fakeProvider scripts probe outcomes. When healthErr is non-nil the
// HealthCheck capability fails with it; chatErr drives the ping path.
type fakeProvider struct {
	name string

	mu        sync.Mutex
	chatErr   error
	chatDelay time.Duration
	chatCalls int
	models    []string // models requested per call
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.chatCalls++
	f.models = append(f.models, req.Model)
	err := f.chatErr
	delay := f.chatDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, provider.Classify(ctx, f.name, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return &provider.ChatResponse{Text: "pong"}, nil
}

func (f *fakeProvider) setChatErr(err error) {
	f.mu.Lock()
	f.chatErr = err
	f.mu.Unlock()
}

// checkedProvider additionally implements the HealthChecker capability.
type checkedProvider struct {
	fakeProvider
	healthErr   error
	healthCalls int
}

func (c *checkedProvider) HealthCheck(context.Context) error {
	c.mu.Lock()
	c.healthCalls++
	c.mu.Unlock()
	return c.healthErr
}

func newTestMonitor(t *testing.T, entries map[string]*provider.Entry) (*Monitor, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	m := NewMonitor(provider.NewRegistry(entries), events.NewPublisher(bus, ""), Config{
		CheckInterval: time.Hour, // tests drive probes explicitly
		ProbeTimeout:  time.Second,
	})
	for id := range entries {
		m.Register(id)
	}
	return m, bus
}

func TestMonitor_RegisterIdempotent(t *testing.T) {
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"openai": {Provider: &fakeProvider{name: "openai"}, Tier: models.TierPremium},
	})

	// Seed some history, then re-register.
	m.UpdateStatus("openai", true, time.Second)
	m.Register("openai")

	h, err := m.GetHealth("openai")
	require.NoError(t, err)
	assert.Equal(t, models.HealthStateHealthy, h.Status,
		"re-registration must not reset an existing record")
}

func TestMonitor_UnregisteredProbe(t *testing.T) {
	m, _ := newTestMonitor(t, map[string]*provider.Entry{})

	err := m.CheckProvider(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestMonitor_Classification(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		latency time.Duration
		repeat  int
		want    models.HealthState
	}{
		{name: "fast success is healthy", success: true, latency: 500 * time.Millisecond, repeat: 1, want: models.HealthStateHealthy},
		{name: "boundary 3s success is degraded", success: true, latency: 3 * time.Second, repeat: 1, want: models.HealthStateDegraded},
		{name: "slow success is degraded", success: true, latency: 5 * time.Second, repeat: 1, want: models.HealthStateDegraded},
		{name: "boundary 10s success is unhealthy", success: true, latency: 10 * time.Second, repeat: 1, want: models.HealthStateUnhealthy},
		{name: "single failure is degraded", success: false, latency: time.Second, repeat: 1, want: models.HealthStateDegraded},
		{name: "two failures still degraded", success: false, latency: time.Second, repeat: 2, want: models.HealthStateDegraded},
		{name: "three failures is unhealthy", success: false, latency: time.Second, repeat: 3, want: models.HealthStateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMonitor(t, map[string]*provider.Entry{
				"p": {Provider: &fakeProvider{name: "p"}, Tier: models.TierPremium},
			})
			for i := 0; i < tt.repeat; i++ {
				m.UpdateStatus("p", tt.success, tt.latency)
			}
			h, err := m.GetHealth("p")
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Status)
		})
	}
}

func TestMonitor_SuccessResetsFailureStreak(t *testing.T) {
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"p": {Provider: &fakeProvider{name: "p"}, Tier: models.TierPremium},
	})

	m.UpdateStatus("p", false, time.Second)
	m.UpdateStatus("p", false, time.Second)
	m.UpdateStatus("p", true, time.Second)
	m.UpdateStatus("p", false, time.Second)
	m.UpdateStatus("p", false, time.Second)

	h, err := m.GetHealth("p")
	require.NoError(t, err)
	assert.Equal(t, 2, h.ConsecutiveFailures)
	assert.Equal(t, models.HealthStateDegraded, h.Status,
		"streak restarted by the success must not reach unhealthy")
}

func TestMonitor_RollingWindowCapped(t *testing.T) {
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"p": {Provider: &fakeProvider{name: "p"}, Tier: models.TierPremium},
	})

	// 10 failures fill the window, then 15 successes flush them out.
	for i := 0; i < 10; i++ {
		m.UpdateStatus("p", false, time.Second)
	}
	for i := 0; i < 15; i++ {
		m.UpdateStatus("p", true, time.Second)
	}

	h, err := m.GetHealth("p")
	require.NoError(t, err)
	assert.Zero(t, h.ErrorRate, "window keeps only the last 10 results")
}

func TestMonitor_StatusUpdatedFiresOnChangeOnly(t *testing.T) {
	m, bus := newTestMonitor(t, map[string]*provider.Entry{
		"p": {Provider: &fakeProvider{name: "p"}, Tier: models.TierPremium},
	})

	var mu sync.Mutex
	var transitions []events.HealthStatusUpdatedPayload
	bus.Subscribe(events.TopicHealthStatusUpdated, func(_ string, payload any) {
		mu.Lock()
		transitions = append(transitions, payload.(events.HealthStatusUpdatedPayload))
		mu.Unlock()
	})

	m.UpdateStatus("p", true, time.Second) // unknown → healthy
	m.UpdateStatus("p", true, time.Second) // healthy → healthy (no event)
	m.UpdateStatus("p", false, time.Second) // healthy → degraded

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 2)
	assert.Equal(t, models.HealthStateUnknown, transitions[0].Previous)
	assert.Equal(t, models.HealthStateHealthy, transitions[0].New)
	assert.Equal(t, models.HealthStateHealthy, transitions[1].Previous)
	assert.Equal(t, models.HealthStateDegraded, transitions[1].New)
	assert.NotEmpty(t, transitions[1].Reason)
}

func TestMonitor_CheckProviderEmitsCheckStarted(t *testing.T) {
	m, bus := newTestMonitor(t, map[string]*provider.Entry{
		"openai": {Provider: &fakeProvider{name: "openai"}, Tier: models.TierPremium},
	})

	var started []string
	bus.Subscribe(events.TopicHealthCheckStarted, func(_ string, payload any) {
		started = append(started, payload.(events.HealthCheckStartedPayload).ProviderID)
	})

	require.NoError(t, m.CheckProvider(context.Background(), "openai"))
	assert.Equal(t, []string{"openai"}, started)
}

func TestMonitor_ProbePrefersHealthChecker(t *testing.T) {
	cp := &checkedProvider{fakeProvider: fakeProvider{name: "anthropic"}}
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"anthropic": {Provider: cp, Tier: models.TierPremium, CheapModel: "haiku"},
	})

	require.NoError(t, m.CheckProvider(context.Background(), "anthropic"))

	cp.mu.Lock()
	defer cp.mu.Unlock()
	assert.Equal(t, 1, cp.healthCalls)
	assert.Zero(t, cp.chatCalls, "capability probe must replace the ping chat")
}

func TestMonitor_PingUsesCheapModelThenRetriesDefault(t *testing.T) {
	fp := &fakeProvider{name: "openai", chatErr: errors.New("cheap model gone")}
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"openai": {Provider: fp, Tier: models.TierPremium, CheapModel: "gpt-mini"},
	})

	require.NoError(t, m.CheckProvider(context.Background(), "openai"))

	fp.mu.Lock()
	defer fp.mu.Unlock()
	require.Equal(t, 2, fp.chatCalls)
	assert.Equal(t, "gpt-mini", fp.models[0], "cheap variant tried first")
	assert.Empty(t, fp.models[1], "retry falls back to the default model")
}

func TestMonitor_ProbeTimeoutClassifiesFailure(t *testing.T) {
	fp := &fakeProvider{name: "slow", chatDelay: 5 * time.Second}
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"slow": {Provider: fp, Tier: models.TierPremium},
	})

	require.NoError(t, m.CheckProvider(context.Background(), "slow"))

	h, err := m.GetHealth("slow")
	require.NoError(t, err)
	assert.Equal(t, models.HealthStateDegraded, h.Status)
	assert.Equal(t, 1, h.ConsecutiveFailures)
}

func TestMonitor_DuplicateProbeReturnsImmediately(t *testing.T) {
	fp := &fakeProvider{name: "slow", chatDelay: 300 * time.Millisecond}
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"slow": {Provider: fp, Tier: models.TierPremium},
	})

	done := make(chan struct{})
	go func() {
		_ = m.CheckProvider(context.Background(), "slow")
		close(done)
	}()

	// Give the first probe time to take the in-flight slot, then the
	// duplicate must return well before the 300ms probe completes.
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, m.CheckProvider(context.Background(), "slow"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-done
	fp.mu.Lock()
	defer fp.mu.Unlock()
	assert.Equal(t, 1, fp.chatCalls)
}

func TestMonitor_StartStopLifecycle(t *testing.T) {
	fp := &fakeProvider{name: "openai"}
	bus := events.NewBus()
	m := NewMonitor(
		provider.NewRegistry(map[string]*provider.Entry{
			"openai": {Provider: fp, Tier: models.TierPremium},
		}),
		events.NewPublisher(bus, ""),
		Config{CheckInterval: time.Hour, ProbeTimeout: time.Second},
	)
	m.Register("openai")

	m.Start(context.Background())
	m.Start(context.Background()) // reentrant no-op

	// First wave runs immediately.
	require.Eventually(t, m.HasCompletedFirstCheck, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.HasHealthyProviders())

	m.Stop()

	// Records survive Stop.
	h, err := m.GetHealth("openai")
	require.NoError(t, err)
	assert.Equal(t, models.HealthStateHealthy, h.Status)
}

func TestMonitor_GetAllHealthStatusReturnsCopies(t *testing.T) {
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"p": {Provider: &fakeProvider{name: "p"}, Tier: models.TierPremium},
	})
	m.UpdateStatus("p", true, time.Second)

	all := m.GetAllHealthStatus()
	all["p"].Status = models.HealthStateUnhealthy

	h, err := m.GetHealth("p")
	require.NoError(t, err)
	assert.Equal(t, models.HealthStateHealthy, h.Status, "mutating a returned copy must not leak")
}

func TestMonitor_HasHealthyProviders(t *testing.T) {
	m, _ := newTestMonitor(t, map[string]*provider.Entry{
		"a": {Provider: &fakeProvider{name: "a"}, Tier: models.TierPremium},
		"b": {Provider: &fakeProvider{name: "b"}, Tier: models.TierCheap},
	})

	assert.False(t, m.HasHealthyProviders(), "unknown providers are not healthy")

	m.UpdateStatus("a", false, time.Second)
	assert.False(t, m.HasHealthyProviders())

	m.UpdateStatus("b", true, time.Second)
	assert.True(t, m.HasHealthyProviders())
}
