package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Consultation holds the schema definition for the Consultation entity.
type Consultation struct {
	ent.Schema
}

// Mixin for custom ID field.
func (Consultation) Mixin() []ent.Mixin {
	return []ent.Mixin{}
}

// Fields of the Consultation.
func (Consultation) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("consultation_id").
			Unique().
			Immutable(),
		field.Text("question").
			Comment("Question under deliberation (full-text searchable)"),
		field.Enum("mode").
			Values("consult", "quick").
			Default("consult"),
		field.Enum("state").
			Values("pending", "in_progress", "complete", "aborted", "timed_out", "cost_rejected").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable().
			Comment("When the consultation was accepted"),
		field.Time("started_at").
			Optional().
			Nillable().
			Comment("When round 1 dispatch began (after the cost gate)"),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Int64("duration_ms").
			Optional().
			Comment("Wall-clock duration, set on completion"),
		field.Text("recommendation").
			Optional().
			Nillable().
			Comment("Final verdict recommendation (full-text searchable)"),
		field.Float("confidence").
			Optional().
			Nillable().
			Comment("Verdict confidence in [0,1]"),
		field.JSON("dissent", []string{}).
			Optional(),
		field.Float("estimated_cost_usd").
			Default(0).
			Comment("Pre-flight estimate shown at the cost gate"),
		field.Int("estimated_tokens").
			Default(0),
		field.Float("actual_cost_usd").
			Default(0),
		field.Int("input_tokens").
			Default(0),
		field.Int("output_tokens").
			Default(0),
		field.Int("total_tokens").
			Default(0),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Text("project_context").
			Optional().
			Nillable().
			Comment("Condensed project context injected into round prompts"),
		field.JSON("agents", []models.Agent{}).
			Optional().
			Comment("Panel snapshot at dispatch time"),
		field.JSON("pulse_metadata", &models.PulseMetadata{}).
			Optional().
			Comment("Watchdog activity, present when a pulse fired"),
		field.JSON("token_efficiency", &models.TokenEfficiencyStats{}).
			Optional().
			Comment("Inter-round filter savings, present when filtering ran"),
		field.Time("deleted_at").
			Optional().
			Nillable().
			Comment("Soft delete for retention policy"),
	}
}

// Edges of the Consultation.
func (Consultation) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("responses", AgentResponse.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("artifacts", RoundArtifact.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("events", Event.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Consultation.
func (Consultation) Indexes() []ent.Index {
	return []ent.Index{
		// Single field indexes
		index.Fields("state"),
		index.Fields("mode"),

		// Composite indexes
		index.Fields("state", "created_at"),
		index.Fields("created_at"),

		// Partial index for soft deletes
		index.Fields("deleted_at").
			Annotations(entsql.IndexWhere("deleted_at IS NOT NULL")),
	}
}

// Annotations for PostgreSQL-specific features.
// Note: GIN indexes for full-text search are created via migration hooks
// in pkg/database/migrations.go
func (Consultation) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
