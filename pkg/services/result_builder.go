package services

import (
	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/pkg/models"
)

// BuildConsultationResult assembles the domain result from a consultation
// row loaded with its responses and artifacts edges (GetConsultation with
// withEdges=true). Missing edges yield an empty but well-formed result,
// which is what partial runs look like.
func BuildConsultationResult(cons *ent.Consultation) (*models.ConsultationResult, error) {
	responses, err := BuildRoundResponses(cons.Edges.Artifacts)
	if err != nil {
		return nil, err
	}

	result := &models.ConsultationResult{
		ConsultationID: cons.ID,
		Question:       cons.Question,
		Mode:           models.Mode(cons.Mode),
		Timestamp:      cons.CreatedAt,
		DurationMs:     cons.DurationMs,
		State:          models.ConsultationState(cons.State),
		Responses:      responses,
		Dissent:        cons.Dissent,
		Cost: models.Cost{
			Tokens: models.TokenUsage{
				Input:  cons.InputTokens,
				Output: cons.OutputTokens,
				Total:  cons.TotalTokens,
			},
			USD: cons.ActualCostUsd,
		},
		EstimatedCost: models.Cost{
			Tokens: models.TokenUsage{Total: cons.EstimatedTokens},
			USD:    cons.EstimatedCostUsd,
		},
		ActualCost:           cons.ActualCostUsd,
		Agents:               cons.Agents,
		PulseMetadata:        cons.PulseMetadata,
		TokenEfficiencyStats: cons.TokenEfficiency,
	}

	if cons.Recommendation != nil {
		result.Recommendation = *cons.Recommendation
	}
	if cons.Confidence != nil {
		result.Confidence = cons.Confidence
	}
	if cons.ProjectContext != nil {
		result.ProjectContext = *cons.ProjectContext
	}

	for _, r := range cons.Edges.Responses {
		result.AgentResponses = append(result.AgentResponses, ResponseToModel(r))
	}

	return result, nil
}
