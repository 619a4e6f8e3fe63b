package config

import (
	"fmt"
	"time"
)

// SlackConfig holds resolved Slack notification configuration.
type SlackConfig struct {
	Enabled  bool
	TokenEnv string // Env var name for Slack bot token (default: "SLACK_BOT_TOKEN")
	Channel  string // Slack channel ID (e.g., "C12345678")
}

// ProjectContextConfig holds resolved project-context gathering settings.
type ProjectContextConfig struct {
	Globs          []string      // Doc file patterns scanned relative to the project root
	MaxDocBytes    int           // Per-document size cap before truncation
	CacheTTL       time.Duration // Fetched-document cache duration (default: 5m)
	AllowedDomains []string      // Allowed URL domains for remote context docs
	TokenEnv       string        // Env var name containing GitHub PAT (default: "GITHUB_TOKEN")
}

// MaskingConfig holds resolved secret-redaction settings. Masking is
// applied to provider error strings and other persisted text before it
// reaches the database or the result payload.
type MaskingConfig struct {
	Enabled        bool
	PatternGroups  []string         // Built-in group names (e.g. "secrets")
	Patterns       []string         // Individual built-in pattern names
	CustomPatterns []MaskingPattern // User-defined regex patterns
}

// MaskingPattern defines a regex-based masking pattern.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Description string `yaml:"description,omitempty"`
}

// ServerConfig holds resolved HTTP server settings.
type ServerConfig struct {
	Host string // Bind address (empty = all interfaces)
	Port int    // Listen port (default: 8080)
}

// Addr returns the host:port listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
