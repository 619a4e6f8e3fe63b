// Package config provides configuration management for the conclave
// system: provider endpoints, the deliberation panel, the judge, pricing,
// and system-wide defaults.
package config

import (
	"fmt"
	"sync"
)

// AgentConfig defines one seat on the deliberation panel.
type AgentConfig struct {
	// Stable agent id (required, unique within the panel)
	ID string `yaml:"id"`

	// Human-readable name shown in results and the dashboard.
	// Defaults to ID when omitted.
	DisplayName string `yaml:"display_name,omitempty"`

	// Provider id this agent speaks through (required)
	Provider string `yaml:"provider"`

	// Role is the persona block injected into the agent's system prompt
	Role string `yaml:"role,omitempty"`
}

// JudgeConfig selects the model that runs synthesis, cross-exam
// consolidation, and the final verdict.
type JudgeConfig struct {
	// Provider id (required)
	Provider string `yaml:"provider"`

	// Model override; empty means the provider's configured model
	Model string `yaml:"model,omitempty"`
}

// AgentRegistry stores the deliberation panel in memory with thread-safe
// access. Unlike a plain map it preserves configuration order: round
// results are reported in panel order, not completion order.
type AgentRegistry struct {
	agents map[string]*AgentConfig
	order  []string
	mu     sync.RWMutex
}

// NewAgentRegistry creates a new agent registry preserving panel order
func NewAgentRegistry(agents []*AgentConfig) *AgentRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*AgentConfig, len(agents))
	order := make([]string, 0, len(agents))
	for _, a := range agents {
		if _, seen := copied[a.ID]; !seen {
			order = append(order, a.ID)
		}
		copied[a.ID] = a
	}
	return &AgentRegistry{
		agents: copied,
		order:  order,
	}
}

// Get retrieves an agent configuration by id (thread-safe)
func (r *AgentRegistry) Get(id string) (*AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return agent, nil
}

// Panel returns all agent configurations in panel order (thread-safe,
// returns copy)
func (r *AgentRegistry) Panel() []*AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*AgentConfig, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.agents[id])
	}
	return result
}

// IDs returns all agent ids in panel order (thread-safe, returns copy)
func (r *AgentRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Has checks if an agent exists in the registry (thread-safe)
func (r *AgentRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[id]
	return exists
}

// Len returns the number of agents in the registry (thread-safe)
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
