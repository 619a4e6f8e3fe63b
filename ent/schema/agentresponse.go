package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AgentResponse holds the schema definition for the AgentResponse entity.
// One row per dispatched provider call, including hedged substitutes and
// failed calls (which carry an error instead of content).
type AgentResponse struct {
	ent.Schema
}

// Fields of the AgentResponse.
func (AgentResponse) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("response_id").
			Unique().
			Immutable(),
		field.String("consultation_id").
			Immutable(),
		field.String("agent_id").
			Comment("Panel seat this call served, or 'judge'"),
		field.String("provider_id").
			Comment("Provider that actually answered"),
		field.Int("round").
			Comment("Deliberation round 1-4"),
		field.Text("content").
			Optional().
			Comment("Raw model output; empty when the call failed"),
		field.Int("input_tokens").
			Default(0),
		field.Int("output_tokens").
			Default(0),
		field.Int("total_tokens").
			Default(0),
		field.Int64("latency_ms").
			Default(0),
		field.String("provider_error").
			Optional().
			Nillable(),
		field.Bool("substituted").
			Default(false).
			Comment("True when a backup answered for a failed or slow primary"),
		field.String("substitute_provider").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the AgentResponse.
func (AgentResponse) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("consultation", Consultation.Type).
			Ref("responses").
			Field("consultation_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the AgentResponse.
func (AgentResponse) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("consultation_id", "round"),
		index.Fields("agent_id"),
		index.Fields("created_at"),
	}
}
