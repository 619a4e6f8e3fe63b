package services

import (
	"context"
	"testing"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testPanel is a minimal valid panel snapshot for consultation rows
func testPanel() []models.Agent {
	return []models.Agent{
		{ID: "architect", DisplayName: "Architect", ProviderID: "anthropic-opus"},
		{ID: "pragmatist", DisplayName: "Pragmatist", ProviderID: "openai-gpt5"},
		{ID: "skeptic", DisplayName: "Skeptic", ProviderID: "gemini-pro"},
	}
}

// createTestConsultation creates a pending consultation for tests that
// need a parent row
func createTestConsultation(t *testing.T, client *ent.Client) *ent.Consultation {
	t.Helper()

	svc := NewConsultationService(client)
	cons, err := svc.CreateConsultation(context.Background(), CreateConsultationInput{
		ConsultationID: uuid.New().String(),
		Question:       "Should the indexing pipeline move to a message queue?",
		Mode:           models.ModeConsult,
		Agents:         testPanel(),
	})
	require.NoError(t, err)
	return cons
}
