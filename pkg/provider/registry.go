package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Entry binds a live provider client to its selection metadata.
type Entry struct {
	Provider Provider
	Tier     models.Tier
	// CheapModel is the cheapest equivalent model for this provider
	// family; empty when no mapping exists. Used by health probes.
	CheapModel string
}

// Registry stores provider clients in memory with thread-safe access.
// The hedge manager walks it for backup candidates; the health monitor
// probes every registered entry.
type Registry struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry(entries map[string]*Entry) *Registry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*Entry, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Registry{
		entries: copied,
	}
}

// Get retrieves a provider entry by id (thread-safe)
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return entry, nil
}

// Has checks if a provider exists in the registry (thread-safe)
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.entries[id]
	return exists
}

// IDs returns all provider ids in sorted order (thread-safe)
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IDsByTier returns the sorted ids of all providers in the given tier
// (thread-safe)
func (r *Registry) IDsByTier(tier models.Tier) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id, entry := range r.entries {
		if entry.Tier == tier {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered providers (thread-safe)
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
