package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RoundArtifact holds the schema definition for the RoundArtifact entity.
// Structured output parsed from round responses; the payload layout is
// keyed by artifact_type (independent, synthesis, cross_exam, verdict).
type RoundArtifact struct {
	ent.Schema
}

// Fields of the RoundArtifact.
func (RoundArtifact) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("artifact_id").
			Unique().
			Immutable(),
		field.String("consultation_id").
			Immutable(),
		field.Int("round").
			Comment("Deliberation round 1-4"),
		field.Enum("artifact_type").
			Values("independent", "synthesis", "cross_exam", "verdict"),
		field.String("agent_id").
			Optional().
			Nillable().
			Comment("Authoring agent; nil for judge artifacts"),
		field.JSON("payload", map[string]interface{}{}).
			Comment("Artifact body, schema depends on artifact_type"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the RoundArtifact.
func (RoundArtifact) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("consultation", Consultation.Type).
			Ref("artifacts").
			Field("consultation_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the RoundArtifact.
func (RoundArtifact) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("consultation_id", "round"),
		index.Fields("consultation_id", "artifact_type"),
	}
}
