package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Publisher emits typed consultation events onto a scoped bus. Every
// method is nil-safe and best-effort: a nil Publisher (or nil bus)
// silently drops, so call sites in the engine never need to branch on
// whether streaming is wired up. Marshal failures are logged and the
// event is skipped; they never fail the consultation.
type Publisher struct {
	bus            *Bus
	consultationID string
}

// NewPublisher creates a publisher bound to one consultation's bus.
func NewPublisher(bus *Bus, consultationID string) *Publisher {
	return &Publisher{bus: bus, consultationID: consultationID}
}

// Bus returns the underlying bus (nil for a nil publisher). Used by
// components that need to attach their own listeners.
func (p *Publisher) Bus() *Bus {
	if p == nil {
		return nil
	}
	return p.bus
}

// ConsultationID returns the id this publisher is scoped to.
func (p *Publisher) ConsultationID() string {
	if p == nil {
		return ""
	}
	return p.consultationID
}

// ConsultationStarted announces the run with its question and roster.
func (p *Publisher) ConsultationStarted(question string, agents []models.Agent) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicConsultationStarted, ConsultationStartedPayload{
		Type:           TopicConsultationStarted,
		ConsultationID: p.consultationID,
		Question:       question,
		Agents:         agents,
		Timestamp:      eventTimestamp(),
	})
}

// CostEstimated reports the pre-flight estimate and whether consent is
// being requested.
func (p *Publisher) CostEstimated(estimate models.Cost, proceedRequired bool) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicCostEstimated, CostEstimatedPayload{
		Type:            TopicCostEstimated,
		ConsultationID:  p.consultationID,
		Estimate:        estimate,
		ProceedRequired: proceedRequired,
		Timestamp:       eventTimestamp(),
	})
}

// UserConsent records the cost gate decision.
func (p *Publisher) UserConsent(accepted bool) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicUserConsent, UserConsentPayload{
		Type:           TopicUserConsent,
		ConsultationID: p.consultationID,
		Accepted:       accepted,
		Timestamp:      eventTimestamp(),
	})
}

// AgentThinking marks an agent call dispatch.
func (p *Publisher) AgentThinking(agentID, agentName string, round int) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicAgentThinking, AgentThinkingPayload{
		Type:           TopicAgentThinking,
		ConsultationID: p.consultationID,
		AgentID:        agentID,
		AgentName:      agentName,
		Round:          round,
		Timestamp:      eventTimestamp(),
	})
}

// AgentCompleted marks an agent call settling.
func (p *Publisher) AgentCompleted(agentID, agentName string, round int, success bool, latencyMs int64) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicAgentCompleted, AgentCompletedPayload{
		Type:           TopicAgentCompleted,
		ConsultationID: p.consultationID,
		AgentID:        agentID,
		AgentName:      agentName,
		Round:          round,
		Success:        success,
		LatencyMs:      latencyMs,
		Timestamp:      eventTimestamp(),
	})
}

// RoundStart marks a round beginning.
func (p *Publisher) RoundStart(round int) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicRoundStart, RoundStartPayload{
		Type:           TopicRoundStart,
		ConsultationID: p.consultationID,
		Round:          round,
		Timestamp:      eventTimestamp(),
	})
}

// RoundCompleted marks a round's artifact being accepted.
func (p *Publisher) RoundCompleted(round int, artifactType models.ArtifactType) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicRoundCompleted, RoundCompletedPayload{
		Type:           TopicRoundCompleted,
		ConsultationID: p.consultationID,
		Round:          round,
		ArtifactType:   artifactType,
		Timestamp:      eventTimestamp(),
	})
}

// RoundArtifact carries one produced artifact, serialized in place.
func (p *Publisher) RoundArtifact(round int, artifact models.Artifact) {
	if p == nil || p.bus == nil {
		return
	}
	raw, err := json.Marshal(artifact)
	if err != nil {
		slog.Warn("Failed to marshal round artifact for event",
			"consultation_id", p.consultationID, "round", round, "error", err)
		return
	}
	p.bus.Publish(TopicRoundArtifact, RoundArtifactPayload{
		Type:           TopicRoundArtifact,
		ConsultationID: p.consultationID,
		Round:          round,
		Artifact:       raw,
		Timestamp:      eventTimestamp(),
	})
}

// ProviderSubstituted fires before the substitute dispatch, so the
// timeline shows the handoff ahead of the backup's completion.
func (p *Publisher) ProviderSubstituted(agentID, originalProvider, substituteProvider, reason string) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicProviderSubstituted, ProviderSubstitutedPayload{
		Type:               TopicProviderSubstituted,
		ConsultationID:     p.consultationID,
		AgentID:            agentID,
		OriginalProvider:   originalProvider,
		SubstituteProvider: substituteProvider,
		Reason:             reason,
		Timestamp:          eventTimestamp(),
	})
}

// HealthCheckStarted marks a probe dispatch. Health events carry no
// consultation scope.
func (p *Publisher) HealthCheckStarted(providerID string) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicHealthCheckStarted, HealthCheckStartedPayload{
		Type:       TopicHealthCheckStarted,
		ProviderID: providerID,
		Timestamp:  eventTimestamp(),
	})
}

// HealthStatusUpdated fires on classification change only.
func (p *Publisher) HealthStatusUpdated(providerID string, previous, next models.HealthState, reason string) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicHealthStatusUpdated, HealthStatusUpdatedPayload{
		Type:      TopicHealthStatusUpdated,
		Provider:  providerID,
		Previous:  previous,
		New:       next,
		Reason:    reason,
		Timestamp: eventTimestamp(),
	})
}

// ConsultationCompleted carries the full serialized result, partial or
// complete.
func (p *Publisher) ConsultationCompleted(result *models.ConsultationResult) {
	if p == nil || p.bus == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		slog.Warn("Failed to marshal consultation result for event",
			"consultation_id", p.consultationID, "error", err)
		return
	}
	p.bus.Publish(TopicConsultationCompleted, ConsultationCompletedPayload{
		Type:           TopicConsultationCompleted,
		ConsultationID: p.consultationID,
		Result:         raw,
		Timestamp:      eventTimestamp(),
	})
}

// Error reports a non-fatal fault. Always deliverable thanks to the
// bus's default error listener.
func (p *Publisher) Error(message, errContext string) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicError, ErrorPayload{
		Type:           TopicError,
		ConsultationID: p.consultationID,
		Message:        message,
		Context:        errContext,
		Timestamp:      eventTimestamp(),
	})
}

// PulseCancel records a user-initiated cancellation at a pulse prompt.
func (p *Publisher) PulseCancel(agentID string, elapsedSeconds int) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(TopicPulseCancel, PulseCancelPayload{
		Type:           TopicPulseCancel,
		ConsultationID: p.consultationID,
		AgentID:        agentID,
		ElapsedSeconds: elapsedSeconds,
		Timestamp:      eventTimestamp(),
	})
}

func eventTimestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}
