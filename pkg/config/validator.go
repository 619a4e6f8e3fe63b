package config

import (
	"fmt"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: providers → agents → judge → defaults → caps → prices
	// This ensures dependencies are validated before dependents

	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}

	if err := v.validateJudge(); err != nil {
		return fmt.Errorf("judge validation failed: %w", err)
	}

	if err := v.validateAPIKeys(); err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}

	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}

	if err := v.validateFilterCaps(); err != nil {
		return fmt.Errorf("filter caps validation failed: %w", err)
	}

	if err := v.validatePrices(); err != nil {
		return fmt.Errorf("price validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateProviders() error {
	for id, provider := range v.cfg.ProviderRegistry.GetAll() {
		// Validate provider kind
		if !provider.Kind.IsValid() {
			return NewValidationError("provider", id, "kind", fmt.Errorf("invalid provider kind: %s", provider.Kind))
		}

		// Validate model is not empty
		if provider.Model == "" {
			return NewValidationError("provider", id, "model", fmt.Errorf("model required"))
		}

		// Validate tier
		if !provider.Tier.IsValid() {
			return NewValidationError("provider", id, "tier", fmt.Errorf("invalid tier: %s (want T1, T2 or T3)", provider.Tier))
		}

		// Validate key source is named: without one the provider can
		// never authenticate, not even with the right environment
		if provider.APIKey == "" && provider.APIKeyEnv == "" {
			return NewValidationError("provider", id, "api_key_env", fmt.Errorf("api_key or api_key_env required"))
		}

		// Validate timeout if specified
		if provider.TimeoutMS < 0 {
			return NewValidationError("provider", id, "timeout_ms", fmt.Errorf("must not be negative"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateAgents() error {
	seen := make(map[string]bool)

	for _, agent := range v.cfg.AgentRegistry.Panel() {
		// Validate agent id
		if agent.ID == "" {
			return NewValidationError("agent", agent.DisplayName, "id", fmt.Errorf("id required"))
		}
		if seen[agent.ID] {
			return NewValidationError("agent", agent.ID, "id", fmt.Errorf("duplicate agent id"))
		}
		seen[agent.ID] = true

		// Validate provider reference
		if agent.Provider == "" {
			return NewValidationError("agent", agent.ID, "provider", fmt.Errorf("provider required"))
		}
		if !v.cfg.ProviderRegistry.Has(agent.Provider) {
			return NewValidationError("agent", agent.ID, "provider", fmt.Errorf("provider '%s' not found", agent.Provider))
		}
	}

	return nil
}

func (v *ConfigValidator) validateJudge() error {
	judge := v.cfg.Judge

	if judge == nil || judge.Provider == "" {
		return NewValidationError("judge", "judge", "provider", fmt.Errorf("provider required"))
	}

	if !v.cfg.ProviderRegistry.Has(judge.Provider) {
		return NewValidationError("judge", "judge", "provider", fmt.Errorf("provider '%s' not found", judge.Provider))
	}

	return nil
}

// validateAPIKeys requires resolvable key material for every provider a
// consultation will actually call: the panel's providers and the judge's.
// Unreferenced providers may sit keyless; health probes fail them and
// backup selection skips them, so they stay inert until configured.
func (v *ConfigValidator) validateAPIKeys() error {
	referenced := make(map[string]bool)
	for _, agent := range v.cfg.AgentRegistry.Panel() {
		referenced[agent.Provider] = true
	}
	if v.cfg.Judge != nil {
		referenced[v.cfg.Judge.Provider] = true
	}

	for id := range referenced {
		provider, err := v.cfg.ProviderRegistry.Get(id)
		if err != nil {
			// Dangling references are caught by agent/judge validation
			continue
		}
		if provider.ResolveAPIKey() == "" {
			return NewValidationError("provider", id, "api_key_env",
				fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
		}
	}

	return nil
}

func (v *ConfigValidator) validateDefaults() error {
	d := v.cfg.Defaults

	if d.Mode != "" && !d.Mode.IsValid() {
		return NewValidationError("defaults", "defaults", "mode", fmt.Errorf("invalid mode: %s", d.Mode))
	}
	if d.CostGate() < 0 {
		return NewValidationError("defaults", "defaults", "cost_gate_usd", fmt.Errorf("must not be negative"))
	}
	if d.HedgeDelayMS < 0 {
		return NewValidationError("defaults", "defaults", "hedge_delay_ms", fmt.Errorf("must not be negative"))
	}
	if d.PulseThresholdMS < 0 {
		return NewValidationError("defaults", "defaults", "pulse_threshold_ms", fmt.Errorf("must not be negative"))
	}
	if d.ConsultationTimeoutMS <= 0 {
		return NewValidationError("defaults", "defaults", "consultation_timeout_ms", fmt.Errorf("must be positive"))
	}
	if d.HealthCheckIntervalMS <= 0 {
		return NewValidationError("defaults", "defaults", "health_check_interval_ms", fmt.Errorf("must be positive"))
	}
	if d.HealthCheckTimeoutMS <= 0 {
		return NewValidationError("defaults", "defaults", "health_check_timeout_ms", fmt.Errorf("must be positive"))
	}
	if d.RollingWindowSize < 1 {
		return NewValidationError("defaults", "defaults", "rolling_window_size", fmt.Errorf("must be at least 1"))
	}

	return nil
}

func (v *ConfigValidator) validateFilterCaps() error {
	caps := v.cfg.FilterCaps

	check := func(field string, value int) error {
		if value <= 0 {
			return NewValidationError("filter_caps", "filter_caps", field, fmt.Errorf("must be positive"))
		}
		return nil
	}

	if err := check("consensus_points", caps.ConsensusPoints); err != nil {
		return err
	}
	if err := check("tensions", caps.Tensions); err != nil {
		return err
	}
	if err := check("challenges", caps.Challenges); err != nil {
		return err
	}
	return check("rebuttals", caps.Rebuttals)
}

func (v *ConfigValidator) validatePrices() error {
	for model, price := range v.cfg.Prices {
		if model == "" {
			return NewValidationError("price", model, "", fmt.Errorf("model name required"))
		}
		if price.InputPerMTok < 0 || price.OutputPerMTok < 0 {
			return NewValidationError("price", model, "", fmt.Errorf("prices must not be negative"))
		}
	}

	return nil
}
