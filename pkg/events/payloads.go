package events

import (
	"encoding/json"

	"github.com/conclave-ai/conclave/pkg/models"
)

// ConsultationStartedPayload announces a new deliberation run.
type ConsultationStartedPayload struct {
	Type           string         `json:"type"` // always TopicConsultationStarted
	ConsultationID string         `json:"consultation_id"`
	Question       string         `json:"question"`
	Agents         []models.Agent `json:"agents"`
	Timestamp      string         `json:"timestamp"` // RFC3339Nano
}

// CostEstimatedPayload carries the pre-flight cost estimate. When
// ProceedRequired is true the run is paused on the consent prompt.
type CostEstimatedPayload struct {
	Type            string      `json:"type"` // always TopicCostEstimated
	ConsultationID  string      `json:"consultation_id"`
	Estimate        models.Cost `json:"estimate"`
	ProceedRequired bool        `json:"proceed_required"`
	Timestamp       string      `json:"timestamp"` // RFC3339Nano
}

// UserConsentPayload records the answer to the cost gate prompt.
type UserConsentPayload struct {
	Type           string `json:"type"` // always TopicUserConsent
	ConsultationID string `json:"consultation_id"`
	Accepted       bool   `json:"accepted"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}

// AgentThinkingPayload fires when an agent call is dispatched.
type AgentThinkingPayload struct {
	Type           string `json:"type"` // always TopicAgentThinking
	ConsultationID string `json:"consultation_id"`
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	Round          int    `json:"round"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}

// AgentCompletedPayload fires when an agent call settles, successfully
// or not. Failed calls still complete — per-agent failures never escape
// the hedge boundary.
type AgentCompletedPayload struct {
	Type           string `json:"type"` // always TopicAgentCompleted
	ConsultationID string `json:"consultation_id"`
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	Round          int    `json:"round"`
	Success        bool   `json:"success"`
	LatencyMs      int64  `json:"latency_ms"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}

// RoundStartPayload fires before a round's first dispatch.
type RoundStartPayload struct {
	Type           string `json:"type"` // always TopicRoundStart
	ConsultationID string `json:"consultation_id"`
	Round          int    `json:"round"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}

// RoundCompletedPayload fires after a round's artifact is accepted.
// Round numbers are monotonic within a consultation.
type RoundCompletedPayload struct {
	Type           string              `json:"type"` // always TopicRoundCompleted
	ConsultationID string              `json:"consultation_id"`
	Round          int                 `json:"round"`
	ArtifactType   models.ArtifactType `json:"artifact_type"`
	Timestamp      string              `json:"timestamp"` // RFC3339Nano
}

// RoundArtifactPayload carries one produced artifact, serialized.
type RoundArtifactPayload struct {
	Type           string          `json:"type"` // always TopicRoundArtifact
	ConsultationID string          `json:"consultation_id"`
	Round          int             `json:"round"`
	Artifact       json.RawMessage `json:"artifact"`
	Timestamp      string          `json:"timestamp"` // RFC3339Nano
}

// ProviderSubstitutedPayload fires before a backup provider is
// dispatched, whether hedged (reason "timeout") or after total primary
// failure (reason "failure").
type ProviderSubstitutedPayload struct {
	Type               string `json:"type"` // always TopicProviderSubstituted
	ConsultationID     string `json:"consultation_id"`
	AgentID            string `json:"agent_id"`
	OriginalProvider   string `json:"original_provider"`
	SubstituteProvider string `json:"substitute_provider"`
	Reason             string `json:"reason"` // "timeout" or "failure"
	Timestamp          string `json:"timestamp"`
}

// HealthCheckStartedPayload fires once per probe, per provider.
type HealthCheckStartedPayload struct {
	Type       string `json:"type"` // always TopicHealthCheckStarted
	ProviderID string `json:"provider_id"`
	Timestamp  string `json:"timestamp"` // RFC3339Nano
}

// HealthStatusUpdatedPayload fires only when a probe changes a
// provider's classification.
type HealthStatusUpdatedPayload struct {
	Type      string             `json:"type"` // always TopicHealthStatusUpdated
	Provider  string             `json:"provider"`
	Previous  models.HealthState `json:"previous"`
	New       models.HealthState `json:"new"`
	Reason    string             `json:"reason"`
	Timestamp string             `json:"timestamp"` // RFC3339Nano
}

// ConsultationCompletedPayload carries the full serialized result. Runs
// that end partially (aborted, timed out, cost-rejected) emit it too —
// the result's state field tells them apart.
type ConsultationCompletedPayload struct {
	Type           string          `json:"type"` // always TopicConsultationCompleted
	ConsultationID string          `json:"consultation_id"`
	Result         json.RawMessage `json:"result"`
	Timestamp      string          `json:"timestamp"` // RFC3339Nano
}

// ErrorPayload reports a non-fatal fault observed mid-run. Every bus
// carries a default no-op listener for this topic, so emission with no
// subscribers is always safe.
type ErrorPayload struct {
	Type           string `json:"type"` // always TopicError
	ConsultationID string `json:"consultation_id,omitempty"`
	Message        string `json:"message"`
	Context        string `json:"context,omitempty"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}

// PulseCancelPayload fires when the user declines to keep waiting for a
// slow agent call at a pulse prompt.
type PulseCancelPayload struct {
	Type           string `json:"type"` // always TopicPulseCancel
	ConsultationID string `json:"consultation_id"`
	AgentID        string `json:"agent_id"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}
