package config

import (
	"github.com/conclave-ai/conclave/pkg/artifact"
	"github.com/conclave-ai/conclave/pkg/cost"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Config is the umbrella configuration object that encapsulates
// all registries, defaults, and configuration state.
// This is the primary object returned by Initialize() and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// System-wide defaults
	Defaults *Defaults

	// Judge model selection for rounds 2, 3 (consolidation) and 4
	Judge *JudgeConfig

	// Inter-round artifact truncation caps
	FilterCaps artifact.Caps

	// Per-model price table for cost estimation
	Prices cost.PriceTable

	// System infrastructure settings
	Slack            *SlackConfig
	Retention        *RetentionConfig
	ProjectContext   *ProjectContextConfig
	Server           *ServerConfig
	Masking          *MaskingConfig
	DashboardURL     string
	AllowedWSOrigins []string

	// Component registries
	ProviderRegistry *ProviderRegistry
	AgentRegistry    *AgentRegistry
}

// Initialize is defined in loader.go

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers    int
	Agents       int
	PricedModels int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.ProviderRegistry != nil {
		s.Providers = c.ProviderRegistry.Len()
	}
	if c.AgentRegistry != nil {
		s.Agents = c.AgentRegistry.Len()
	}
	s.PricedModels = len(c.Prices)
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a provider configuration by id.
// This is a convenience method that wraps ProviderRegistry.Get().
func (c *Config) GetProvider(id string) (*ProviderConfig, error) {
	return c.ProviderRegistry.Get(id)
}

// GetAgent retrieves an agent configuration by id.
// This is a convenience method that wraps AgentRegistry.Get().
func (c *Config) GetAgent(id string) (*AgentConfig, error) {
	return c.AgentRegistry.Get(id)
}

// Panel returns the deliberation panel in seat order.
// This is a convenience method that wraps AgentRegistry.Panel().
func (c *Config) Panel() []*AgentConfig {
	return c.AgentRegistry.Panel()
}

// TierMap returns providerID → tier for backup selection.
func (c *Config) TierMap() map[string]models.Tier {
	return c.ProviderRegistry.TierMap()
}

// ProviderModels returns providerID → model for cost estimation.
func (c *Config) ProviderModels() map[string]string {
	return c.ProviderRegistry.Models()
}

// JudgeModel returns the model the judge answers with: the explicit
// override when set, otherwise the judge provider's configured model.
func (c *Config) JudgeModel() string {
	if c.Judge == nil {
		return ""
	}
	if c.Judge.Model != "" {
		return c.Judge.Model
	}
	if p, err := c.GetProvider(c.Judge.Provider); err == nil {
		return p.Model
	}
	return ""
}
