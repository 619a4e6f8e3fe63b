package engine

import (
	"context"
	"sort"
	"sync"
)

// Pool tracks the cancel functions of in-flight consultations so the
// cancel endpoint can reach runs started asynchronously. Entries are
// registered when a run starts and removed when it finishes, whatever
// the outcome.
type Pool struct {
	mu     sync.RWMutex
	active map[string]context.CancelFunc
}

// NewPool creates an empty consultation pool.
func NewPool() *Pool {
	return &Pool{
		active: make(map[string]context.CancelFunc),
	}
}

// Register adds a running consultation. Registering an ID twice
// replaces the previous entry.
func (p *Pool) Register(consultationID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[consultationID] = cancel
}

// Unregister removes a consultation without cancelling it.
func (p *Pool) Unregister(consultationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, consultationID)
}

// Cancel aborts a running consultation. Returns false when the ID is
// not active on this engine.
func (p *Pool) Cancel(consultationID string) bool {
	p.mu.Lock()
	cancel, ok := p.active[consultationID]
	delete(p.active, consultationID)
	p.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// Running reports whether the consultation is active.
func (p *Pool) Running(consultationID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.active[consultationID]
	return ok
}

// ActiveIDs returns the IDs of running consultations, sorted for
// stable output.
func (p *Pool) ActiveIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of running consultations.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}
