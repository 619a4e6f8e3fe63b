package models

// ConsultationState defines the lifecycle state of a consultation
type ConsultationState string

const (
	// StatePending means the consultation is accepted but not yet started
	StatePending ConsultationState = "pending"
	// StateInProgress means the deliberation rounds are running
	StateInProgress ConsultationState = "in_progress"
	// StateComplete means all requested rounds produced artifacts
	StateComplete ConsultationState = "complete"
	// StateAborted means the run was cancelled by the user or a fatal judge failure
	StateAborted ConsultationState = "aborted"
	// StateTimedOut means the overall deadline elapsed mid-run
	StateTimedOut ConsultationState = "timed_out"
	// StateCostRejected means the cost gate stopped the run before any provider call
	StateCostRejected ConsultationState = "cost_rejected"
)

// IsValid checks if the consultation state is valid
func (s ConsultationState) IsValid() bool {
	switch s {
	case StatePending,
		StateInProgress,
		StateComplete,
		StateAborted,
		StateTimedOut,
		StateCostRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible
func (s ConsultationState) IsTerminal() bool {
	switch s {
	case StateComplete, StateAborted, StateTimedOut, StateCostRejected:
		return true
	default:
		return false
	}
}

// HealthState classifies a provider for backup selection and observability
type HealthState string

const (
	// HealthStateHealthy means recent probes succeed with low latency
	HealthStateHealthy HealthState = "healthy"
	// HealthStateDegraded means slow responses or a short failure streak
	HealthStateDegraded HealthState = "degraded"
	// HealthStateUnhealthy means very slow responses or a sustained failure streak
	HealthStateUnhealthy HealthState = "unhealthy"
	// HealthStateUnknown means the provider has never been probed
	HealthStateUnknown HealthState = "unknown"
)

// IsValid checks if the health state is valid
func (s HealthState) IsValid() bool {
	switch s {
	case HealthStateHealthy, HealthStateDegraded, HealthStateUnhealthy, HealthStateUnknown:
		return true
	default:
		return false
	}
}

// Tier is a cost/capability band used for backup selection
type Tier string

const (
	// TierPremium is the top band (frontier models)
	TierPremium Tier = "T1"
	// TierStandard is the mid band
	TierStandard Tier = "T2"
	// TierCheap is the low band (fast/cheap models)
	TierCheap Tier = "T3"
)

// IsValid checks if the tier is valid
func (t Tier) IsValid() bool {
	return t == TierPremium || t == TierStandard || t == TierCheap
}

// Chain returns the tiers to walk when selecting a backup for a primary in
// this tier. Premium primaries may fall back to any band; cheap primaries
// only to their own.
func (t Tier) Chain() []Tier {
	switch t {
	case TierPremium:
		return []Tier{TierPremium, TierStandard, TierCheap}
	case TierStandard:
		return []Tier{TierStandard, TierCheap}
	default:
		return []Tier{TierCheap}
	}
}

// Mode selects the fan-out profile for a consultation
type Mode string

const (
	// ModeConsult runs the full four-round deliberation
	ModeConsult Mode = "consult"
	// ModeQuick runs independent positions only (round 1)
	ModeQuick Mode = "quick"
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeConsult || m == ModeQuick
}

// ArtifactType identifies which round produced an artifact
type ArtifactType string

const (
	// ArtifactTypeIndependent is a round-1 per-agent position
	ArtifactTypeIndependent ArtifactType = "independent"
	// ArtifactTypeSynthesis is the round-2 judge synthesis
	ArtifactTypeSynthesis ArtifactType = "synthesis"
	// ArtifactTypeCrossExam is the round-3 consolidated cross-examination
	ArtifactTypeCrossExam ArtifactType = "cross_exam"
	// ArtifactTypeVerdict is the round-4 final verdict
	ArtifactTypeVerdict ArtifactType = "verdict"
)

// IsValid checks if the artifact type is valid
func (a ArtifactType) IsValid() bool {
	switch a {
	case ArtifactTypeIndependent, ArtifactTypeSynthesis, ArtifactTypeCrossExam, ArtifactTypeVerdict:
		return true
	default:
		return false
	}
}
