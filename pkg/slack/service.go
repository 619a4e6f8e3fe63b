package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// ConsultationCompletedInput contains data for a terminal consultation
// notification. State is one of the terminal consultation states
// (complete, aborted, timed_out, cost_rejected).
type ConsultationCompletedInput struct {
	ConsultationID string
	Question       string
	State          string
	Recommendation string
	Confidence     *float64 // 0..1, nil when no verdict was reached
	Dissent        []string
	CostUSD        float64
	ErrorMessage   string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyConsultationCompleted sends a terminal state notification carrying
// the verdict summary. Fail-open: errors are logged, never returned.
func (s *Service) NotifyConsultationCompleted(ctx context.Context, input ConsultationCompletedInput) {
	if s == nil {
		return
	}

	blocks := BuildVerdictMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack notification",
			"consultation_id", input.ConsultationID,
			"state", input.State,
			"error", err)
	}
}
