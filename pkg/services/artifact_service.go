package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/ent/roundartifact"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/google/uuid"
)

// ArtifactService persists the structured outputs of each round
type ArtifactService struct {
	client *ent.Client
}

// NewArtifactService creates a new ArtifactService
func NewArtifactService(client *ent.Client) *ArtifactService {
	return &ArtifactService{client: client}
}

// SaveArtifact persists a typed round artifact. The typed struct is
// stored as a JSON payload keyed by artifact_type; DecodeArtifact is
// the inverse.
func (s *ArtifactService) SaveArtifact(httpCtx context.Context, consultationID string, art models.Artifact) (*ent.RoundArtifact, error) {
	if consultationID == "" {
		return nil, NewValidationError("consultation_id", "required")
	}
	if art == nil {
		return nil, NewValidationError("artifact", "required")
	}
	if !art.Kind().IsValid() {
		return nil, NewValidationError("artifact_type", fmt.Sprintf("unknown artifact type %q", art.Kind()))
	}

	// Convert the typed artifact to a JSON payload map
	raw, err := json.Marshal(art)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact payload: %w", err)
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	builder := s.client.RoundArtifact.Create().
		SetID(uuid.New().String()).
		SetConsultationID(consultationID).
		SetRound(art.Round()).
		SetArtifactType(roundartifact.ArtifactType(art.Kind())).
		SetPayload(payload).
		SetCreatedAt(time.Now())

	// Independent artifacts carry the authoring agent
	if ind, ok := art.(*models.IndependentArtifact); ok {
		builder.SetAgentID(ind.AgentID)
	}

	row, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, fmt.Errorf("%w: consultation %s", ErrNotFound, consultationID)
		}
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}

	return row, nil
}

// ListArtifacts returns all artifacts for a consultation ordered by
// round then creation time. Round 1 rows keep their insert order, which
// is the panel configuration order.
func (s *ArtifactService) ListArtifacts(ctx context.Context, consultationID string) ([]*ent.RoundArtifact, error) {
	rows, err := s.client.RoundArtifact.Query().
		Where(roundartifact.ConsultationIDEQ(consultationID)).
		Order(ent.Asc(roundartifact.FieldRound), ent.Asc(roundartifact.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	return rows, nil
}

// DecodeArtifact reconstructs the typed artifact from a stored row
func DecodeArtifact(row *ent.RoundArtifact) (models.Artifact, error) {
	raw, err := json.Marshal(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stored payload: %w", err)
	}

	var art models.Artifact
	switch row.ArtifactType {
	case roundartifact.ArtifactTypeIndependent:
		art = &models.IndependentArtifact{}
	case roundartifact.ArtifactTypeSynthesis:
		art = &models.SynthesisArtifact{}
	case roundartifact.ArtifactTypeCrossExam:
		art = &models.CrossExamArtifact{}
	case roundartifact.ArtifactTypeVerdict:
		art = &models.VerdictArtifact{}
	default:
		return nil, fmt.Errorf("unknown artifact type %q", row.ArtifactType)
	}

	if err := json.Unmarshal(raw, art); err != nil {
		return nil, fmt.Errorf("failed to decode %s artifact: %w", row.ArtifactType, err)
	}

	return art, nil
}

// BuildRoundResponses groups decoded artifact rows by round. Round 1
// artifacts keep row order.
func BuildRoundResponses(rows []*ent.RoundArtifact) (models.Responses, error) {
	var out models.Responses

	for _, row := range rows {
		art, err := DecodeArtifact(row)
		if err != nil {
			return models.Responses{}, err
		}

		switch a := art.(type) {
		case *models.IndependentArtifact:
			out.Round1 = append(out.Round1, a)
		case *models.SynthesisArtifact:
			out.Round2 = a
		case *models.CrossExamArtifact:
			out.Round3 = a
		case *models.VerdictArtifact:
			out.Round4 = a
		}
	}

	return out, nil
}
