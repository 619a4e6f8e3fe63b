// Package services contains the persistence layer for consultations,
// responses, artifacts and events. Services wrap the Ent client and are
// the only writers to the database; the engine and API compose them.
package services

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/ent/agentresponse"
	"github.com/conclave-ai/conclave/ent/consultation"
	"github.com/conclave-ai/conclave/ent/roundartifact"
	"github.com/conclave-ai/conclave/pkg/models"
)

// ConsultationService manages consultation lifecycle rows
type ConsultationService struct {
	client *ent.Client
}

// NewConsultationService creates a new ConsultationService
func NewConsultationService(client *ent.Client) *ConsultationService {
	return &ConsultationService{client: client}
}

// CreateConsultationInput carries everything known at accept time.
type CreateConsultationInput struct {
	ConsultationID string
	Question       string
	Mode           models.Mode
	ProjectContext string
	Agents         []models.Agent
}

// ConsultationFilters narrows ListConsultations results
type ConsultationFilters struct {
	State          string
	Mode           string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ConsultationList is one page of consultations plus the unpaged total
type ConsultationList struct {
	Consultations []*ent.Consultation
	TotalCount    int
	Limit         int
	Offset        int
}

// CreateConsultation creates a new consultation row in the pending state.
// The row must exist before the first event is published for it: event
// rows carry a foreign key to the consultation.
func (s *ConsultationService) CreateConsultation(httpCtx context.Context, in CreateConsultationInput) (*ent.Consultation, error) {
	// Validate input
	if in.ConsultationID == "" {
		return nil, NewValidationError("consultation_id", "required")
	}
	if in.Question == "" {
		return nil, NewValidationError("question", "required")
	}
	if in.Mode != "" && !in.Mode.IsValid() {
		return nil, NewValidationError("mode", fmt.Sprintf("unknown mode %q", in.Mode))
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	builder := s.client.Consultation.Create().
		SetID(in.ConsultationID).
		SetQuestion(in.Question).
		SetState(consultation.StatePending).
		SetCreatedAt(time.Now())

	if in.Mode != "" {
		builder.SetMode(consultation.Mode(in.Mode))
	}
	if in.ProjectContext != "" {
		builder.SetProjectContext(in.ProjectContext)
	}
	if len(in.Agents) > 0 {
		builder.SetAgents(in.Agents)
	}

	cons, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create consultation: %w", err)
	}

	return cons, nil
}

// GetConsultation retrieves a consultation by ID with optional edge loading
func (s *ConsultationService) GetConsultation(ctx context.Context, consultationID string, withEdges bool) (*ent.Consultation, error) {
	query := s.client.Consultation.Query().Where(consultation.IDEQ(consultationID))

	if withEdges {
		query = query.
			WithResponses(func(q *ent.AgentResponseQuery) {
				q.Order(ent.Asc(agentresponse.FieldRound), ent.Asc(agentresponse.FieldCreatedAt))
			}).
			WithArtifacts(func(q *ent.RoundArtifactQuery) {
				q.Order(ent.Asc(roundartifact.FieldRound), ent.Asc(roundartifact.FieldCreatedAt))
			})
	}

	cons, err := query.Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}

	return cons, nil
}

// ListConsultations lists consultations with filtering and pagination
func (s *ConsultationService) ListConsultations(ctx context.Context, filters ConsultationFilters) (*ConsultationList, error) {
	query := s.client.Consultation.Query()

	// Apply filters
	if filters.State != "" {
		query = query.Where(consultation.StateEQ(consultation.State(filters.State)))
	}
	if filters.Mode != "" {
		query = query.Where(consultation.ModeEQ(consultation.Mode(filters.Mode)))
	}
	if filters.CreatedAfter != nil {
		query = query.Where(consultation.CreatedAtGTE(*filters.CreatedAfter))
	}
	if filters.CreatedBefore != nil {
		query = query.Where(consultation.CreatedAtLT(*filters.CreatedBefore))
	}
	if !filters.IncludeDeleted {
		query = query.Where(consultation.DeletedAtIsNil())
	}

	// Count total
	totalCount, err := query.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count consultations: %w", err)
	}

	// Apply pagination
	limit := filters.Limit
	if limit <= 0 {
		limit = 20 // Default
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	consultations, err := query.
		Limit(limit).
		Offset(offset).
		Order(ent.Desc(consultation.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}

	return &ConsultationList{
		Consultations: consultations,
		TotalCount:    totalCount,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

// SearchConsultations performs full-text search on question and recommendation
func (s *ConsultationService) SearchConsultations(ctx context.Context, query string, limit int) ([]*ent.Consultation, error) {
	if limit <= 0 {
		limit = 20
	}

	consultations, err := s.client.Consultation.Query().
		Where(consultation.DeletedAtIsNil()).
		Where(func(sel *sql.Selector) {
			sel.Where(sql.Or(
				sql.ExprP("to_tsvector('english', question) @@ plainto_tsquery($1)", query),
				sql.ExprP("to_tsvector('english', COALESCE(recommendation, '')) @@ plainto_tsquery($2)", query),
			))
		}).
		Limit(limit).
		Order(ent.Desc(consultation.FieldCreatedAt)).
		All(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to search consultations: %w", err)
	}

	return consultations, nil
}

// RecordEstimate stores the pre-flight cost estimate shown at the cost gate
func (s *ConsultationService) RecordEstimate(ctx context.Context, consultationID string, estimate models.Cost) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Consultation.UpdateOneID(consultationID).
		SetEstimatedCostUsd(estimate.USD).
		SetEstimatedTokens(estimate.Tokens.Total).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to record estimate: %w", err)
	}

	return nil
}

// MarkStarted transitions a pending consultation to in_progress. Called
// once the cost gate has approved and round 1 dispatch begins.
func (s *ConsultationService) MarkStarted(ctx context.Context, consultationID string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Consultation.UpdateOneID(consultationID).
		SetState(consultation.StateInProgress).
		SetStartedAt(time.Now()).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to mark consultation started: %w", err)
	}

	return nil
}

// CompleteConsultation persists the final state of a finished run in a
// single write. Partial runs (aborted, timed out, cost rejected) land
// here too; they simply carry fewer populated fields.
func (s *ConsultationService) CompleteConsultation(ctx context.Context, consultationID string, result *models.ConsultationResult) error {
	if result == nil {
		return NewValidationError("result", "required")
	}
	if !result.State.IsTerminal() {
		return NewValidationError("state", fmt.Sprintf("%q is not a terminal state", result.State))
	}

	// Use background context with timeout for critical write. The run
	// context is typically already cancelled when an aborted run lands.
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := s.client.Consultation.UpdateOneID(consultationID).
		SetState(consultation.State(result.State)).
		SetCompletedAt(time.Now()).
		SetDurationMs(result.DurationMs).
		SetActualCostUsd(result.Cost.USD).
		SetInputTokens(result.Cost.Tokens.Input).
		SetOutputTokens(result.Cost.Tokens.Output).
		SetTotalTokens(result.Cost.Tokens.Total)

	if result.Recommendation != "" {
		update.SetRecommendation(result.Recommendation)
	}
	if result.Confidence != nil {
		update.SetConfidence(*result.Confidence)
	}
	if len(result.Dissent) > 0 {
		update.SetDissent(result.Dissent)
	}
	if result.PulseMetadata != nil {
		update.SetPulseMetadata(result.PulseMetadata)
	}
	if result.TokenEfficiencyStats != nil {
		update.SetTokenEfficiency(result.TokenEfficiencyStats)
	}

	err := update.Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to complete consultation: %w", err)
	}

	return nil
}

// SetErrorMessage records a failure description without changing state.
// Used when a run aborts mid-round and the terminal write follows later.
func (s *ConsultationService) SetErrorMessage(ctx context.Context, consultationID, message string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Consultation.UpdateOneID(consultationID).
		SetErrorMessage(message).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to set error message: %w", err)
	}

	return nil
}

// SoftDeleteOldConsultations soft deletes consultations past the retention
// window. Covers both finished runs (completed_at old) and runs that never
// finished because the process died (completed_at nil, created_at old).
func (s *ConsultationService) SoftDeleteOldConsultations(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention_days must be positive, got %d", retentionDays)
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	// Use background context with timeout
	deleteCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.client.Consultation.Update().
		Where(
			consultation.DeletedAtIsNil(),
			consultation.Or(
				consultation.CompletedAtLT(cutoff),
				consultation.And(
					consultation.CompletedAtIsNil(),
					consultation.CreatedAtLT(cutoff),
				),
			),
		).
		SetDeletedAt(time.Now()).
		Save(deleteCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete consultations: %w", err)
	}

	return count, nil
}

// RestoreConsultation restores a soft-deleted consultation
func (s *ConsultationService) RestoreConsultation(ctx context.Context, consultationID string) error {
	restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Consultation.UpdateOneID(consultationID).
		ClearDeletedAt().
		Exec(restoreCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to restore consultation: %w", err)
	}

	return nil
}
