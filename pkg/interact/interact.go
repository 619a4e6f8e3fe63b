// Package interact defines the user prompt port. The cost gate, the
// hedge failure path, and the pulse watchdog all ask their questions
// through a Prompter; swapping the implementation switches the whole
// engine between interactive and unattended operation.
package interact

import "context"

// FailureAction is the user's choice when an agent's primary and
// hedged backup have both failed.
type FailureAction string

const (
	// ActionSubstitute dispatches the offered candidate provider.
	ActionSubstitute FailureAction = "substitute"
	// ActionSkip records an empty-content response and moves on.
	ActionSkip FailureAction = "skip"
	// ActionAbort cancels the whole consultation.
	ActionAbort FailureAction = "abort"
)

// IsValid checks if the failure action is valid.
func (a FailureAction) IsValid() bool {
	return a == ActionSubstitute || a == ActionSkip || a == ActionAbort
}

// FailurePrompt carries the context shown to the user when every
// provider attempt for an agent has failed.
type FailurePrompt struct {
	AgentID   string
	AgentName string
	Provider  string // the provider that failed
	Candidate string // offered substitute; empty when none is available
	Reason    string // human-readable failure summary
}

// Prompter asks the user questions mid-consultation. Implementations
// must honour context cancellation: an abandoned prompt returns
// ctx.Err() rather than hanging the engine.
type Prompter interface {
	// Confirm asks a yes/no question. def is returned by
	// implementations that cannot ask (unattended runs).
	Confirm(ctx context.Context, prompt string, def bool) (bool, error)

	// ChooseFailureAction asks how to proceed after total failure of
	// an agent's provider chain.
	ChooseFailureAction(ctx context.Context, prompt *FailurePrompt) (FailureAction, error)
}
