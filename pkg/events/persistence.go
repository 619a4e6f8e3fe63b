package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventPublisher delivers pre-marshaled event payloads durably: the
// event row is inserted and pg_notify fired in a single transaction, so
// subscribers never observe a NOTIFY for a row that failed to commit.
// Transient payloads (health transitions, global list fan-out copies)
// skip the insert and go straight to NOTIFY.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a publisher over the raw connection pool.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// Publish persists one event for a consultation and broadcasts it on
// channel. pg_notify is transactional: the notification is held until
// COMMIT, so insert and broadcast land atomically.
func (p *EventPublisher) Publish(ctx context.Context, consultationID, channel string, payloadJSON []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (consultation_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		consultationID, channel, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// PublishTransient broadcasts without persisting. Used for payloads
// whose latest state is queryable elsewhere (provider health) and for
// global list-page copies of per-consultation events.
func (p *EventPublisher) PublishTransient(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for
// NOTIFY delivery and applies truncation if the result exceeds
// PostgreSQL's limit. Clients use db_event_id as the catchup cursor.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enriched))
}

// truncateIfNeeded returns the payload as-is when it fits under
// PostgreSQL's 8000-byte NOTIFY limit, otherwise a minimal envelope
// with only the routing fields the client needs to re-fetch the
// complete event from the database.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type           string `json:"type"`
		ConsultationID string `json:"consultation_id"`
		DBEventID      *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":            routing.Type,
		"consultation_id": routing.ConsultationID,
		"truncated":       true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
