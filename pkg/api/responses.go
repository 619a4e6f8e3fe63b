package api

import (
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// ConsultationAccepted is returned by POST /api/v1/consultations.
type ConsultationAccepted struct {
	ConsultationID string `json:"consultation_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

// CancelResponse is returned by POST /api/v1/consultations/:id/cancel.
type CancelResponse struct {
	ConsultationID string `json:"consultation_id"`
	Message        string `json:"message"`
}

// ConsultationSummary is one row of GET /api/v1/consultations.
type ConsultationSummary struct {
	ConsultationID string     `json:"consultation_id"`
	Question       string     `json:"question"`
	Mode           string     `json:"mode"`
	State          string     `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
	ActualCostUSD  float64    `json:"actual_cost_usd"`
}

// ConsultationListResponse is returned by GET /api/v1/consultations.
type ConsultationListResponse struct {
	Consultations []ConsultationSummary `json:"consultations"`
	TotalCount    int                   `json:"total_count"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// ConsultationDetail is returned by GET /api/v1/consultations/:id. The
// embedded result carries whatever rounds have landed so far; Running
// distinguishes an in-flight consultation from a finished one.
type ConsultationDetail struct {
	models.ConsultationResult
	Running      bool   `json:"running"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ActiveConsultationsResponse is returned by GET /api/v1/consultations/active.
type ActiveConsultationsResponse struct {
	ConsultationIDs []string `json:"consultation_ids"`
	Count           int      `json:"count"`
}

// ProvidersHealthResponse is returned by GET /api/v1/providers/health.
type ProvidersHealthResponse struct {
	Providers  map[string]*models.ProviderHealth `json:"providers"`
	AnyHealthy bool                              `json:"any_healthy"`
}

// HealthCheck is a single component entry in HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status              string                 `json:"status"`
	Version             string                 `json:"version"`
	ActiveConsultations int                    `json:"active_consultations"`
	Checks              map[string]HealthCheck `json:"checks"`
}
