// Package events provides the consultation event plane.
//
// Two layers cooperate here:
//
//  1. An in-process topic Bus scoped to one consultation. Engine
//     components (scheduler, hedge manager, health monitor, pulse)
//     publish typed payloads onto it; handlers run synchronously in
//     emit order so observers see a consistent timeline.
//  2. Durable delivery: a Bridge listener forwards bus events into
//     PostgreSQL (events table + NOTIFY in one transaction) and a
//     NotifyListener/ConnectionManager pair fans them out to
//     WebSocket dashboards across pods.
//
// Payloads are typed structs with snake_case JSON tags — see
// payloads.go for the full table of topics.
package events

// Bus topics. One constant per event the deliberation emits; the
// constant doubles as the "type" field of the serialized payload.
const (
	TopicConsultationStarted   = "consultation:started"
	TopicCostEstimated         = "consultation:cost_estimated"
	TopicUserConsent           = "consultation:user_consent"
	TopicAgentThinking         = "agent:thinking"
	TopicAgentCompleted        = "agent:completed"
	TopicRoundStart            = "round:start"
	TopicRoundCompleted        = "round:completed"
	TopicRoundArtifact         = "consultation:round_artifact"
	TopicProviderSubstituted   = "consultation:provider_substituted"
	TopicHealthCheckStarted    = "health:check_started"
	TopicHealthStatusUpdated   = "health:status_updated"
	TopicConsultationCompleted = "consultation:completed"
	TopicError                 = "error"
	TopicPulseCancel           = "consultation:pulse_cancel"
)

// Provider substitution reasons (ProviderSubstitutedPayload.Reason).
const (
	SubstitutionReasonTimeout = "timeout"
	SubstitutionReasonFailure = "failure"
)

// GlobalConsultationsChannel is the NOTIFY channel for consultation-level
// lifecycle events. The consultation list page subscribes to this for
// real-time updates.
const GlobalConsultationsChannel = "consultations"

// HealthChannel is the NOTIFY channel for provider health transitions.
// Health events are transient: broadcast but never persisted, since the
// monitor's current state is queryable via the REST API.
const HealthChannel = "health"

// ConsultationChannel returns the channel name for one consultation's
// events. Format: "consultation:{consultation_id}"
func ConsultationChannel(consultationID string) string {
	return "consultation:" + consultationID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "consultation:abc-123")
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup
}
