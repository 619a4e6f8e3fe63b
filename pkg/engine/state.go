package engine

import (
	"fmt"
	"sync"

	"github.com/conclave-ai/conclave/pkg/models"
)

// State is one phase of the consultation state machine.
type State string

const (
	StateIdle            State = "idle"
	StateEstimating      State = "estimating"
	StateCostRejected    State = "cost_rejected"
	StateAwaitingRound1  State = "awaiting_round1"
	StateRound1          State = "round1"
	StateAllAgentsFailed State = "all_agents_failed"
	StateRound2          State = "round2"
	StateRound3          State = "round3"
	StateRound4          State = "round4"
	StateComplete        State = "complete"
	StateAborted         State = "aborted"
	StateTimedOut        State = "timed_out"
)

// transitions lists the legal next states for each phase. Terminal
// states have no entries. Cancellation can abort any non-terminal
// phase; the deadline can only expire rounds 1 through 3 — a deadline
// reached during round 4 surfaces as a failed judge call instead.
var transitions = map[State][]State{
	StateIdle:           {StateEstimating},
	StateEstimating:     {StateCostRejected, StateAwaitingRound1, StateAborted},
	StateAwaitingRound1: {StateRound1, StateAborted},
	StateRound1:         {StateAllAgentsFailed, StateRound2, StateComplete, StateAborted, StateTimedOut},
	StateRound2:         {StateRound3, StateAborted, StateTimedOut},
	StateRound3:         {StateRound4, StateAborted, StateTimedOut},
	StateRound4:         {StateComplete, StateAborted},
}

// Terminal reports whether the state ends a consultation.
func (s State) Terminal() bool {
	switch s {
	case StateCostRejected, StateAllAgentsFailed, StateComplete, StateAborted, StateTimedOut:
		return true
	}
	return false
}

// ResultState maps a machine state onto the persisted consultation state.
func (s State) ResultState() models.ConsultationState {
	switch s {
	case StateIdle:
		return models.StatePending
	case StateComplete:
		return models.StateComplete
	case StateCostRejected:
		return models.StateCostRejected
	case StateTimedOut:
		return models.StateTimedOut
	case StateAborted, StateAllAgentsFailed:
		return models.StateAborted
	default:
		return models.StateInProgress
	}
}

// machine tracks the phase of one consultation and rejects illegal
// jumps. Guards against scheduler bugs like skipping the cross-exam
// round or completing after an abort.
type machine struct {
	mu    sync.Mutex
	state State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// can reports whether next is a legal transition from the current state.
func (m *machine) can(next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range transitions[m.state] {
		if s == next {
			return true
		}
	}
	return false
}

// to advances the machine or fails without changing state.
func (m *machine) to(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range transitions[m.state] {
		if s == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", m.state, next)
}
