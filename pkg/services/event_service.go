package services

import (
	"context"
	"fmt"
	"time"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/ent/event"
)

// EventService manages the durable WebSocket event log. Live delivery
// goes through the transactional publisher in pkg/events; this service
// covers catchup reads, tests and retention.
type EventService struct {
	client *ent.Client
}

// NewEventService creates a new EventService
func NewEventService(client *ent.Client) *EventService {
	return &EventService{client: client}
}

// CreateEventInput describes one persisted broadcast
type CreateEventInput struct {
	ConsultationID string
	Channel        string
	Payload        map[string]any
}

// CreateEvent creates a new event row
func (s *EventService) CreateEvent(httpCtx context.Context, in CreateEventInput) (*ent.Event, error) {
	if in.ConsultationID == "" {
		return nil, NewValidationError("consultation_id", "required")
	}
	if in.Channel == "" {
		return nil, NewValidationError("channel", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evt, err := s.client.Event.Create().
		SetConsultationID(in.ConsultationID).
		SetChannel(in.Channel).
		SetPayload(in.Payload).
		SetCreatedAt(time.Now()).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, fmt.Errorf("%w: consultation %s", ErrNotFound, in.ConsultationID)
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return evt, nil
}

// GetEventsSince retrieves events on a channel after the given ID,
// oldest first. A limit of 0 means no limit.
func (s *EventService) GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]*ent.Event, error) {
	query := s.client.Event.Query().
		Where(
			event.ChannelEQ(channel),
			event.IDGT(sinceID),
		).
		Order(ent.Asc(event.FieldID))

	if limit > 0 {
		query = query.Limit(limit)
	}

	events, err := query.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	return events, nil
}

// CleanupConsultationEvents removes all events for a consultation
func (s *EventService) CleanupConsultationEvents(ctx context.Context, consultationID string) (int, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := s.client.Event.Delete().
		Where(event.ConsultationIDEQ(consultationID)).
		Exec(writeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup consultation events: %w", err)
	}

	return count, nil
}

// CleanupOrphanedEvents removes events older than the TTL. Events are a
// delivery log, not the record of truth, so aggressive expiry is safe.
func (s *EventService) CleanupOrphanedEvents(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	cutoff := time.Now().Add(-ttl)

	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.client.Event.Delete().
		Where(event.CreatedAtLT(cutoff)).
		Exec(writeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup orphaned events: %w", err)
	}

	return count, nil
}
