package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/pkg/artifact"
	"github.com/conclave-ai/conclave/pkg/cost"
	"github.com/conclave-ai/conclave/pkg/models"
)

// validTestConfig builds a configuration that passes every validator,
// for tests to break one piece at a time.
func validTestConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("PROV_A_KEY", "key-a")
	t.Setenv("PROV_B_KEY", "key-b")

	return &Config{
		Defaults:   DefaultDefaults(),
		Judge:      &JudgeConfig{Provider: "prov-b"},
		FilterCaps: artifact.DefaultCaps(),
		Prices:     cost.DefaultPrices(),
		ProviderRegistry: NewProviderRegistry(map[string]*ProviderConfig{
			"prov-a": {Kind: ProviderKindAnthropic, Model: "model-a", Tier: models.TierPremium, APIKeyEnv: "PROV_A_KEY"},
			"prov-b": {Kind: ProviderKindOpenAI, Model: "model-b", Tier: models.TierStandard, APIKeyEnv: "PROV_B_KEY"},
		}),
		AgentRegistry: NewAgentRegistry([]*AgentConfig{
			{ID: "alpha", DisplayName: "Alpha", Provider: "prov-a"},
			{ID: "beta", DisplayName: "Beta", Provider: "prov-b"},
		}),
	}
}

func TestValidateAllValidConfig(t *testing.T) {
	cfg := validTestConfig(t)
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateProviders(t *testing.T) {
	tests := []struct {
		name     string
		provider *ProviderConfig
		errMsg   string
	}{
		{
			name:     "invalid kind",
			provider: &ProviderConfig{Kind: "mainframe", Model: "m", Tier: models.TierPremium, APIKeyEnv: "K"},
			errMsg:   "invalid provider kind",
		},
		{
			name:     "missing model",
			provider: &ProviderConfig{Kind: ProviderKindOpenAI, Tier: models.TierPremium, APIKeyEnv: "K"},
			errMsg:   "model required",
		},
		{
			name:     "invalid tier",
			provider: &ProviderConfig{Kind: ProviderKindOpenAI, Model: "m", Tier: "T9", APIKeyEnv: "K"},
			errMsg:   "invalid tier",
		},
		{
			name:     "no key source",
			provider: &ProviderConfig{Kind: ProviderKindOpenAI, Model: "m", Tier: models.TierPremium},
			errMsg:   "api_key or api_key_env required",
		},
		{
			name:     "negative timeout",
			provider: &ProviderConfig{Kind: ProviderKindOpenAI, Model: "m", Tier: models.TierPremium, APIKeyEnv: "K", TimeoutMS: -1},
			errMsg:   "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			cfg.ProviderRegistry = NewProviderRegistry(map[string]*ProviderConfig{
				"bad": tt.provider,
			})

			err := NewValidator(cfg).validateProviders()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "provider", validationErr.Component)
			assert.Equal(t, "bad", validationErr.ID)
		})
	}
}

func TestValidateAgents(t *testing.T) {
	tests := []struct {
		name   string
		agents []*AgentConfig
		errMsg string
	}{
		{
			name:   "missing id",
			agents: []*AgentConfig{{DisplayName: "Nameless", Provider: "prov-a"}},
			errMsg: "id required",
		},
		{
			name:   "missing provider",
			agents: []*AgentConfig{{ID: "alpha"}},
			errMsg: "provider required",
		},
		{
			name:   "unknown provider",
			agents: []*AgentConfig{{ID: "alpha", Provider: "ghost"}},
			errMsg: "provider 'ghost' not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			cfg.AgentRegistry = NewAgentRegistry(tt.agents)

			err := NewValidator(cfg).validateAgents()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateAgentsEmptyPanelIsAllowed(t *testing.T) {
	// An empty panel is a runtime concern (AllAgentsFailed before any
	// dispatch), not a configuration error.
	cfg := validTestConfig(t)
	cfg.AgentRegistry = NewAgentRegistry(nil)

	assert.NoError(t, NewValidator(cfg).validateAgents())
}

func TestValidateJudge(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Judge = &JudgeConfig{Provider: "ghost"}
	err := NewValidator(cfg).validateJudge()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider 'ghost' not found")

	cfg.Judge = nil
	err = NewValidator(cfg).validateJudge()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider required")
}

func TestValidateAPIKeys(t *testing.T) {
	cfg := validTestConfig(t)

	// Unreferenced providers may sit keyless
	providers := cfg.ProviderRegistry.GetAll()
	providers["spare"] = &ProviderConfig{
		Kind: ProviderKindGemini, Model: "m", Tier: models.TierCheap, APIKeyEnv: "SPARE_KEY_UNSET",
	}
	cfg.ProviderRegistry = NewProviderRegistry(providers)
	assert.NoError(t, NewValidator(cfg).validateAPIKeys())

	// A panel provider without key material fails fast
	t.Setenv("PROV_A_KEY", "")
	err := NewValidator(cfg).validateAPIKeys()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROV_A_KEY is not set")
}

func TestValidateDefaults(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name   string
		mutate func(*Defaults)
		errMsg string
	}{
		{
			name:   "invalid mode",
			mutate: func(d *Defaults) { d.Mode = "debate" },
			errMsg: "invalid mode",
		},
		{
			name:   "negative cost gate",
			mutate: func(d *Defaults) { d.CostGateUSD = &negative },
			errMsg: "cost_gate_usd",
		},
		{
			name:   "negative hedge delay",
			mutate: func(d *Defaults) { d.HedgeDelayMS = -5 },
			errMsg: "hedge_delay_ms",
		},
		{
			name:   "zero consultation timeout",
			mutate: func(d *Defaults) { d.ConsultationTimeoutMS = 0 },
			errMsg: "consultation_timeout_ms",
		},
		{
			name:   "zero window",
			mutate: func(d *Defaults) { d.RollingWindowSize = 0 },
			errMsg: "rolling_window_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tt.mutate(cfg.Defaults)

			err := NewValidator(cfg).validateDefaults()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateDefaultsZeroCostGateDisablesGate(t *testing.T) {
	cfg := validTestConfig(t)
	zero := 0.0
	cfg.Defaults.CostGateUSD = &zero

	assert.NoError(t, NewValidator(cfg).validateDefaults())
	assert.Equal(t, 0.0, cfg.Defaults.CostGate())
}

func TestValidateFilterCaps(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.FilterCaps.Tensions = 0

	err := NewValidator(cfg).validateFilterCaps()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tensions")
	assert.Contains(t, err.Error(), "must be positive")
}

func TestValidatePrices(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Prices["broken-model"] = cost.ModelPrice{InputPerMTok: -1}

	err := NewValidator(cfg).validatePrices()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}
