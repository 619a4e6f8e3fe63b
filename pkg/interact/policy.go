package interact

import "context"

// Policy answers prompts from fixed, explicitly configured defaults.
// Used for unattended runs (API, MCP shell, CI): nothing is assumed,
// every default is supplied by the caller.
type Policy struct {
	// ConfirmDefault answers Confirm prompts. The cost gate passes its
	// own default per call; this field only applies when the caller
	// asked with no opinion (def handling stays with Confirm's def).
	// Retained for symmetry and future prompt kinds.
	ConfirmDefault *bool

	// FailureDefault answers failure prompts. The standard unattended
	// policy is ActionSubstitute when a candidate exists; the hedge
	// manager downgrades to the skip path itself when none does.
	FailureDefault FailureAction
}

// NewPolicy creates the standard unattended policy: confirm prompts
// resolve to their caller-provided default, failure prompts resolve to
// substitution.
func NewPolicy() *Policy {
	return &Policy{FailureDefault: ActionSubstitute}
}

// Confirm returns the caller's default without asking.
func (p *Policy) Confirm(_ context.Context, _ string, def bool) (bool, error) {
	if p.ConfirmDefault != nil {
		return *p.ConfirmDefault, nil
	}
	return def, nil
}

// ChooseFailureAction returns the configured default action.
func (p *Policy) ChooseFailureAction(_ context.Context, _ *FailurePrompt) (FailureAction, error) {
	if p.FailureDefault.IsValid() {
		return p.FailureDefault, nil
	}
	return ActionSubstitute, nil
}
