package engine

import "errors"

var (
	// ErrAllAgentsFailed indicates a parallel round produced no usable
	// position from any panelist.
	ErrAllAgentsFailed = errors.New("all agents failed")

	// ErrJudgeFailure indicates the single judge call of a round failed
	// or returned an unusable artifact. Judge failures are fatal: the
	// consultation aborts with whatever artifacts exist.
	ErrJudgeFailure = errors.New("judge call failed")

	// ErrCostRejected indicates the estimated cost exceeded the gate
	// threshold and consent was declined. No provider call was made.
	ErrCostRejected = errors.New("consultation rejected by cost gate")

	// ErrTimedOut indicates the overall consultation deadline expired.
	// The partial result carries every artifact produced before expiry.
	ErrTimedOut = errors.New("consultation timed out")

	// ErrNotActive is returned by Cancel when no consultation with the
	// given ID is running on this engine.
	ErrNotActive = errors.New("consultation is not active")
)
