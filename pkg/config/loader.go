package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/conclave-ai/conclave/pkg/artifact"
	"github.com/conclave-ai/conclave/pkg/cost"
)

// ConclaveYAMLConfig represents the complete conclave.yaml file structure
type ConclaveYAMLConfig struct {
	System     *SystemYAMLConfig `yaml:"system"`
	Agents     []AgentConfig     `yaml:"agents"`
	Judge      *JudgeConfig      `yaml:"judge"`
	Defaults   *Defaults         `yaml:"defaults"`
	FilterCaps *artifact.Caps    `yaml:"filter_caps"`
	Prices     cost.PriceTable   `yaml:"prices"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	DashboardURL     string                    `yaml:"dashboard_url"`
	AllowedWSOrigins []string                  `yaml:"allowed_ws_origins"`
	Slack            *SlackYAMLConfig          `yaml:"slack"`
	Retention        *RetentionConfig          `yaml:"retention"`
	ProjectContext   *ProjectContextYAMLConfig `yaml:"project_context"`
	Server           *ServerYAMLConfig         `yaml:"server"`
	Masking          *MaskingYAMLConfig        `yaml:"masking"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// ProjectContextYAMLConfig holds project-context gathering settings from YAML.
type ProjectContextYAMLConfig struct {
	Globs          []string `yaml:"globs,omitempty"`
	MaxDocBytes    int      `yaml:"max_doc_bytes,omitempty"`
	CacheTTL       string   `yaml:"cache_ttl,omitempty"` // Parsed to time.Duration
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
	TokenEnv       string   `yaml:"token_env,omitempty"` // Defaults to "GITHUB_TOKEN" if omitted
}

// ServerYAMLConfig holds HTTP server settings from YAML.
type ServerYAMLConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// MaskingYAMLConfig holds secret-redaction settings from YAML.
type MaskingYAMLConfig struct {
	Enabled        *bool            `yaml:"enabled,omitempty"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	Patterns       []string         `yaml:"patterns,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// ProvidersYAMLConfig represents the complete providers.yaml file structure
type ProvidersYAMLConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir (both optional; built-ins cover a
//     bare directory)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Build in-memory registries
//  6. Apply default values
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	// 1. Load configuration files
	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Validate all configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"agents", stats.Agents,
		"judge", cfg.Judge.Provider,
		"priced_models", stats.PricedModels)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load conclave.yaml (contains system, agents, judge, defaults, caps, prices)
	conclaveConfig, err := loader.loadConclaveYAML()
	if err != nil {
		return nil, NewLoadError("conclave.yaml", err)
	}

	// 2. Load providers.yaml
	userProviders, err := loader.loadProvidersYAML()
	if err != nil {
		return nil, NewLoadError("providers.yaml", err)
	}

	// 3. Get built-in configuration
	builtin := GetBuiltinConfig()

	// 4. Merge built-in + user-defined components (user overrides built-in)
	providers := mergeProviders(builtin.Providers, userProviders)
	agents := mergeAgents(builtin.Agents, conclaveConfig.Agents)
	judge := mergeJudge(builtin.Judge, conclaveConfig.Judge)
	prices := mergePrices(builtin.Prices, conclaveConfig.Prices)

	// 5. Build registries
	providerRegistry := NewProviderRegistry(providers)
	agentRegistry := NewAgentRegistry(agents)

	// 6. Resolve defaults (YAML overrides built-in, merged per field)
	defaults := DefaultDefaults()
	if conclaveConfig.Defaults != nil {
		if err := mergo.Merge(defaults, conclaveConfig.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	filterCaps := artifact.DefaultCaps()
	if conclaveConfig.FilterCaps != nil {
		if err := mergo.Merge(&filterCaps, conclaveConfig.FilterCaps, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge filter caps: %w", err)
		}
	}

	// 7. Resolve system config (Slack + Retention + ProjectContext + Server + Masking + DashboardURL + WS Origins)
	sys := conclaveConfig.System
	slackCfg := resolveSlackConfig(sys)
	retentionCfg := resolveRetentionConfig(sys)
	projectContextCfg := resolveProjectContextConfig(sys)
	serverCfg := resolveServerConfig(sys)
	maskingCfg := resolveMaskingConfig(sys)
	dashboardURL := resolveDashboardURL(sys)
	allowedWSOrigins := resolveAllowedWSOrigins(sys)

	return &Config{
		configDir:        configDir,
		Defaults:         defaults,
		Judge:            judge,
		FilterCaps:       filterCaps,
		Prices:           prices,
		Slack:            slackCfg,
		Retention:        retentionCfg,
		ProjectContext:   projectContextCfg,
		Server:           serverCfg,
		Masking:          maskingCfg,
		DashboardURL:     dashboardURL,
		AllowedWSOrigins: allowedWSOrigins,
		ProviderRegistry: providerRegistry,
		AgentRegistry:    agentRegistry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

// loadConclaveYAML reads conclave.yaml. A missing file is not an error:
// built-in configuration covers every section.
func (l *configLoader) loadConclaveYAML() (*ConclaveYAMLConfig, error) {
	var config ConclaveYAMLConfig

	if err := l.loadYAML("conclave.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Debug("No conclave.yaml found, using built-in configuration")
			return &config, nil
		}
		return nil, err
	}

	return &config, nil
}

// loadProvidersYAML reads providers.yaml. A missing file is not an error:
// the built-in provider set is used.
func (l *configLoader) loadProvidersYAML() (map[string]ProviderConfig, error) {
	var config ProvidersYAMLConfig

	// Initialize map to avoid nil map
	config.Providers = make(map[string]ProviderConfig)

	if err := l.loadYAML("providers.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Debug("No providers.yaml found, using built-in providers")
			return config.Providers, nil
		}
		return nil, err
	}

	return config.Providers, nil
}

// resolveSlackConfig resolves Slack configuration from system YAML, applying defaults.
func resolveSlackConfig(sys *SystemYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}

	if sys == nil || sys.Slack == nil {
		return cfg
	}

	s := sys.Slack
	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.TokenEnv != "" {
		cfg.TokenEnv = s.TokenEnv
	}
	if s.Channel != "" {
		cfg.Channel = s.Channel
	}

	return cfg
}

// resolveRetentionConfig resolves retention configuration from system YAML, applying defaults.
func resolveRetentionConfig(sys *SystemYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()

	if sys == nil || sys.Retention == nil {
		return cfg
	}

	r := sys.Retention
	if r.ConsultationRetentionDays > 0 {
		cfg.ConsultationRetentionDays = r.ConsultationRetentionDays
	}
	if r.EventTTL > 0 {
		cfg.EventTTL = r.EventTTL
	}
	if r.CleanupInterval > 0 {
		cfg.CleanupInterval = r.CleanupInterval
	}

	return cfg
}

// resolveProjectContextConfig resolves project-context configuration from system YAML, applying defaults.
func resolveProjectContextConfig(sys *SystemYAMLConfig) *ProjectContextConfig {
	cfg := &ProjectContextConfig{
		Globs:          []string{"README*", "ARCHITECTURE*", "CONTRIBUTING*", "docs/*.md"},
		MaxDocBytes:    65536,
		CacheTTL:       5 * time.Minute,
		AllowedDomains: []string{"github.com", "raw.githubusercontent.com"},
		TokenEnv:       "GITHUB_TOKEN",
	}

	if sys == nil || sys.ProjectContext == nil {
		return cfg
	}

	pc := sys.ProjectContext
	if len(pc.Globs) > 0 {
		cfg.Globs = pc.Globs
	}
	if pc.MaxDocBytes > 0 {
		cfg.MaxDocBytes = pc.MaxDocBytes
	}
	if pc.CacheTTL != "" {
		if d, err := time.ParseDuration(pc.CacheTTL); err == nil {
			cfg.CacheTTL = d
		} else {
			slog.Warn("Invalid cache_ttl in project_context config, using default",
				"value", pc.CacheTTL,
				"default", cfg.CacheTTL,
				"error", err)
		}
	}
	if len(pc.AllowedDomains) > 0 {
		cfg.AllowedDomains = pc.AllowedDomains
	}
	if pc.TokenEnv != "" {
		cfg.TokenEnv = pc.TokenEnv
	}

	return cfg
}

// resolveServerConfig resolves HTTP server configuration from system YAML, applying defaults.
func resolveServerConfig(sys *SystemYAMLConfig) *ServerConfig {
	cfg := &ServerConfig{
		Port: 8080,
	}

	if sys == nil || sys.Server == nil {
		return cfg
	}

	srv := sys.Server
	if srv.Host != "" {
		cfg.Host = srv.Host
	}
	if srv.Port > 0 {
		cfg.Port = srv.Port
	}

	return cfg
}

// resolveMaskingConfig resolves masking configuration from system YAML, applying defaults.
// Masking defaults to enabled with the "secrets" pattern group.
func resolveMaskingConfig(sys *SystemYAMLConfig) *MaskingConfig {
	cfg := &MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"secrets"},
	}

	if sys == nil || sys.Masking == nil {
		return cfg
	}

	m := sys.Masking
	if m.Enabled != nil {
		cfg.Enabled = *m.Enabled
	}
	if len(m.PatternGroups) > 0 {
		cfg.PatternGroups = m.PatternGroups
	}
	if len(m.Patterns) > 0 {
		cfg.Patterns = m.Patterns
	}
	if len(m.CustomPatterns) > 0 {
		cfg.CustomPatterns = m.CustomPatterns
	}

	return cfg
}

// resolveDashboardURL resolves the dashboard base URL from system YAML, applying defaults.
func resolveDashboardURL(sys *SystemYAMLConfig) string {
	if sys != nil && sys.DashboardURL != "" {
		return sys.DashboardURL
	}
	return "http://localhost:5173"
}

// resolveAllowedWSOrigins returns additional WebSocket origin patterns from system YAML.
func resolveAllowedWSOrigins(sys *SystemYAMLConfig) []string {
	if sys != nil {
		return sys.AllowedWSOrigins
	}
	return nil
}
