package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity: the durable
// WebSocket catchup log, one row per persisted broadcast. The integer
// id doubles as the client's catchup cursor, so rows must be written by
// the transactional publisher in pkg/events (insert + pg_notify in one
// transaction) and are only ever read and deleted here.
type Event struct {
	ent.Schema
}

// Fields of the Event. The default auto-increment int id is kept on
// purpose: monotonically increasing ids give catchup a total order.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("consultation_id").
			Immutable(),
		field.String("channel").
			Comment("Logical broadcast channel, matches the pg_notify channel"),
		field.JSON("payload", map[string]interface{}{}),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Event.
func (Event) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("consultation", Consultation.Type).
			Ref("events").
			Field("consultation_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("channel"),
		index.Fields("consultation_id"),
		index.Fields("created_at"),
	}
}
