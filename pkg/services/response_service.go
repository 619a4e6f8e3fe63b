package services

import (
	"context"
	"fmt"
	"time"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/ent/agentresponse"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/google/uuid"
)

// ResponseService records dispatched provider calls
type ResponseService struct {
	client *ent.Client
}

// NewResponseService creates a new ResponseService
func NewResponseService(client *ent.Client) *ResponseService {
	return &ResponseService{client: client}
}

// RecordResponse persists one provider call. Failed calls are recorded
// too; they carry provider_error instead of content so the dashboard
// can show what each seat actually did.
func (s *ResponseService) RecordResponse(httpCtx context.Context, consultationID string, resp models.AgentResponse) (*ent.AgentResponse, error) {
	if consultationID == "" {
		return nil, NewValidationError("consultation_id", "required")
	}
	if resp.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	if resp.ProviderID == "" {
		return nil, NewValidationError("provider_id", "required")
	}
	if resp.Round < 1 || resp.Round > 4 {
		return nil, NewValidationError("round", fmt.Sprintf("must be 1-4, got %d", resp.Round))
	}

	// Use background context with timeout so responses completing during
	// cancellation still get recorded
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	builder := s.client.AgentResponse.Create().
		SetID(uuid.New().String()).
		SetConsultationID(consultationID).
		SetAgentID(resp.AgentID).
		SetProviderID(resp.ProviderID).
		SetRound(resp.Round).
		SetInputTokens(resp.Usage.Input).
		SetOutputTokens(resp.Usage.Output).
		SetTotalTokens(resp.Usage.Total).
		SetLatencyMs(resp.LatencyMs).
		SetSubstituted(resp.Substituted).
		SetCreatedAt(time.Now())

	if resp.Content != "" {
		builder.SetContent(resp.Content)
	}
	if resp.ProviderError != "" {
		builder.SetProviderError(resp.ProviderError)
	}
	if resp.SubstituteProvider != "" {
		builder.SetSubstituteProvider(resp.SubstituteProvider)
	}

	row, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, fmt.Errorf("%w: consultation %s", ErrNotFound, consultationID)
		}
		return nil, fmt.Errorf("failed to record response: %w", err)
	}

	return row, nil
}

// ListResponses returns all responses for a consultation ordered by
// round then creation time
func (s *ResponseService) ListResponses(ctx context.Context, consultationID string) ([]*ent.AgentResponse, error) {
	rows, err := s.client.AgentResponse.Query().
		Where(agentresponse.ConsultationIDEQ(consultationID)).
		Order(ent.Asc(agentresponse.FieldRound), ent.Asc(agentresponse.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	return rows, nil
}

// ListRoundResponses returns the responses for one round of a consultation
func (s *ResponseService) ListRoundResponses(ctx context.Context, consultationID string, round int) ([]*ent.AgentResponse, error) {
	rows, err := s.client.AgentResponse.Query().
		Where(
			agentresponse.ConsultationIDEQ(consultationID),
			agentresponse.RoundEQ(round),
		).
		Order(ent.Asc(agentresponse.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list round responses: %w", err)
	}

	return rows, nil
}

// ResponseToModel converts a stored row back to the domain type
func ResponseToModel(r *ent.AgentResponse) models.AgentResponse {
	m := models.AgentResponse{
		AgentID:    r.AgentID,
		ProviderID: r.ProviderID,
		Round:      r.Round,
		Content:    r.Content,
		Usage: models.TokenUsage{
			Input:  r.InputTokens,
			Output: r.OutputTokens,
			Total:  r.TotalTokens,
		},
		LatencyMs:   r.LatencyMs,
		Substituted: r.Substituted,
	}
	if r.ProviderError != nil {
		m.ProviderError = *r.ProviderError
	}
	if r.SubstituteProvider != nil {
		m.SubstituteProvider = *r.SubstituteProvider
	}
	return m
}
