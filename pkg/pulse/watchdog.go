// Package pulse guards against indefinite waits on slow agents. Each
// dispatched provider call gets a watchdog timer; when it fires the user
// chooses between continuing to wait and cancelling the call.
package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/interact"
	"github.com/conclave-ai/conclave/pkg/models"
)

// DefaultThreshold is how long an agent call may run before the first
// pulse prompt.
const DefaultThreshold = 60 * time.Second

// Watchdog tracks in-flight agent calls for one consultation. A nil
// watchdog is a no-op, as is a non-positive threshold.
type Watchdog struct {
	threshold time.Duration
	prompter  interact.Prompter
	publisher *events.Publisher
	logger    *slog.Logger

	// promptMu keeps at most one pulse prompt open at a time; parallel
	// round fan-out would otherwise interleave questions on the console.
	promptMu sync.Mutex

	mu        sync.Mutex
	meta      models.PulseMetadata
	cancelled map[string]bool
}

// NewWatchdog builds a watchdog. The prompter decides "continue
// waiting?"; unattended runs pass an interact.Policy, whose confirm
// default keeps waiting.
func NewWatchdog(threshold time.Duration, prompter interact.Prompter, publisher *events.Publisher) *Watchdog {
	return &Watchdog{
		threshold: threshold,
		prompter:  prompter,
		publisher: publisher,
		logger:    slog.Default().With("component", "pulse"),
		cancelled: make(map[string]bool),
	}
}

// Watch arms a timer for one agent call. cancel must abort the call when
// invoked. The returned stop function disarms the watchdog; callers
// defer it at dispatch so settle always releases the timer.
func (w *Watchdog) Watch(ctx context.Context, agentID, agentName string, cancel context.CancelFunc) (stop func()) {
	if w == nil || w.threshold <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go w.run(ctx, agentID, agentName, cancel, done)
	return func() {
		once.Do(func() { close(done) })
	}
}

func (w *Watchdog) run(ctx context.Context, agentID, agentName string, cancel context.CancelFunc, done chan struct{}) {
	start := time.Now()
	timer := time.NewTimer(w.threshold)
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		elapsed := time.Since(start)
		w.recordTrigger(agentID)
		w.logger.Warn("Agent call exceeded pulse threshold",
			"agent_id", agentID,
			"elapsed_seconds", int(elapsed.Seconds()))

		keepWaiting, err := w.prompt(ctx, agentName, elapsed)
		if err != nil {
			// Consultation cancelled while the prompt was open.
			return
		}
		if keepWaiting {
			timer.Reset(w.threshold)
			continue
		}

		w.recordCancel(agentID)
		w.publisher.PulseCancel(agentID, int(elapsed.Seconds()))
		cancel()
		return
	}
}

func (w *Watchdog) prompt(ctx context.Context, agentName string, elapsed time.Duration) (bool, error) {
	w.promptMu.Lock()
	defer w.promptMu.Unlock()

	// Re-check after waiting for the prompt slot; the call may have
	// settled or been cancelled while another prompt was open.
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	question := fmt.Sprintf("Agent %s has been working for %ds. Continue waiting?",
		agentName, int(elapsed.Seconds()))
	return w.prompter.Confirm(ctx, question, true)
}

func (w *Watchdog) recordTrigger(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meta.PulseTriggered = true
	if w.meta.PulseTimestamp == nil {
		now := time.Now().UTC()
		w.meta.PulseTimestamp = &now
	}
	for _, id := range w.meta.TriggeredAgents {
		if id == agentID {
			return
		}
	}
	w.meta.TriggeredAgents = append(w.meta.TriggeredAgents, agentID)
}

func (w *Watchdog) recordCancel(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meta.UserCancelledViaPulse = true
	w.cancelled[agentID] = true
}

// Cancelled reports whether the user cancelled the given agent's call
// through a pulse prompt. The round executor uses this to translate a
// context-cancelled provider error into a user_cancelled response.
func (w *Watchdog) Cancelled(agentID string) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled[agentID]
}

// Metadata returns the accumulated pulse record, or nil when no timer
// ever fired.
func (w *Watchdog) Metadata() *models.PulseMetadata {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.meta.PulseTriggered {
		return nil
	}
	meta := w.meta
	meta.TriggeredAgents = append([]string(nil), w.meta.TriggeredAgents...)
	return &meta
}
