package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These indexes enable efficient full-text search on the question and
// recommendation fields of past consultations.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	// GIN index for question full-text search
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_consultations_question_gin
		ON consultations USING gin(to_tsvector('english', question))`)
	if err != nil {
		return fmt.Errorf("failed to create question GIN index: %w", err)
	}

	// GIN index for recommendation full-text search
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_consultations_recommendation_gin
		ON consultations USING gin(to_tsvector('english', COALESCE(recommendation, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create recommendation GIN index: %w", err)
	}

	return nil
}
