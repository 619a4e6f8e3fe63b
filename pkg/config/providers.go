package config

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// ProviderConfig defines a model provider endpoint.
type ProviderConfig struct {
	// Provider kind selects the client implementation (required)
	Kind ProviderKind `yaml:"kind"`

	// Model answers deliberation calls (required)
	Model string `yaml:"model"`

	// CheapModel is the cheapest model of the same family, used for
	// health probes so monitoring never burns frontier tokens
	CheapModel string `yaml:"cheap_model,omitempty"`

	// Tier is the cost/capability band used for backup selection (required)
	Tier models.Tier `yaml:"tier"`

	// Optional custom endpoint/base URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Environment variable name for API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Literal API key, normally injected via {{.VAR}} expansion.
	// Takes precedence over APIKeyEnv when both are set.
	APIKey string `yaml:"api_key,omitempty"`

	// Per-call timeout in milliseconds (0 = client default)
	TimeoutMS int `yaml:"timeout_ms,omitempty"`
}

// ResolveAPIKey returns the key material for this provider: the literal
// APIKey if present, otherwise the value of APIKeyEnv.
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// Timeout returns the per-call timeout as a duration (0 when unset).
func (p *ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// ProviderRegistry stores provider configurations in memory with thread-safe access
type ProviderRegistry struct {
	providers map[string]*ProviderConfig
	mu        sync.RWMutex
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry(providers map[string]*ProviderConfig) *ProviderRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*ProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &ProviderRegistry{
		providers: copied,
	}
}

// Get retrieves a provider configuration by id (thread-safe)
func (r *ProviderRegistry) Get(id string) (*ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return provider, nil
}

// GetAll returns all provider configurations (thread-safe, returns copy)
func (r *ProviderRegistry) GetAll() map[string]*ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make(map[string]*ProviderConfig, len(r.providers))
	for k, v := range r.providers {
		result[k] = v
	}
	return result
}

// Has checks if a provider exists in the registry (thread-safe)
func (r *ProviderRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[id]
	return exists
}

// IDs returns all provider ids in sorted order (thread-safe)
func (r *ProviderRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of providers in the registry (thread-safe)
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// TierMap returns providerID → tier for every registered provider
// (thread-safe, returns copy)
func (r *ProviderRegistry) TierMap() map[string]models.Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]models.Tier, len(r.providers))
	for id, p := range r.providers {
		result[id] = p.Tier
	}
	return result
}

// Models returns providerID → model for every registered provider
// (thread-safe, returns copy). The cost estimator prices calls with it.
func (r *ProviderRegistry) Models() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.providers))
	for id, p := range r.providers {
		result[id] = p.Model
	}
	return result
}
