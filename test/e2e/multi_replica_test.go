package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/conclave-ai/conclave/test/database"
	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/models"
)

// ────────────────────────────────────────────────────────────
// Multi-replica — cross-replica WebSocket delivery via PostgreSQL
// NOTIFY/LISTEN.
//
// Two conclave instances share one schema. The consultation runs
// entirely on replica 1; a dashboard connected to replica 2 must see
// the identical timeline, live and via REST, with no channel between
// the replicas other than the database.
// ────────────────────────────────────────────────────────────

func TestMultiReplicaEventDelivery(t *testing.T) {
	sharedDB := testdb.NewSharedTestDB(t)

	app1 := NewTestApp(t, WithSharedDB(sharedDB))
	app2 := NewTestApp(t, WithSharedDB(sharedDB))

	// Dashboard connects to replica 2 before anything runs.
	ctx := context.Background()
	ws, err := WSConnect(ctx, app2.wsURLWithChannels(events.GlobalConsultationsChannel))
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()
	_, err = ws.WaitForEventType("connection.established", 5*time.Second)
	require.NoError(t, err)

	// Submit on replica 1; subscribe to the run on replica 2.
	resp := app1.SubmitConsultation(t, "Which database should we use?")
	consultationID := ConsultationIDFrom(t, resp)
	require.NoError(t, ws.Subscribe(events.ConsultationChannel(consultationID)))

	state := app1.WaitForConsultationState(t, consultationID, string(models.StateComplete))
	require.Equal(t, string(models.StateComplete), state)

	// The terminal event reaches replica 2's socket.
	_, err = ws.WaitForConsultationEvent(events.TopicConsultationCompleted, consultationID, 10*time.Second)
	require.NoError(t, err)

	// Replica 2 saw the exact stored timeline, via catchup for whatever
	// landed before its LISTEN and via NOTIFY for the rest.
	stored := app2.ConsultationEvents(t, consultationID)
	require.Len(t, stored, 35)
	assert.Equal(t, StoredEventTypes(stored), WSEventTypes(PersistentWSEvents(ws.Events())))

	// The transient list-page copy crossed replicas too.
	var transientStarted bool
	for _, e := range EventsForConsultation(ws.EventsByType(events.TopicConsultationStarted), consultationID) {
		if _, ok := e.Parsed["db_event_id"]; !ok {
			transientStarted = true
		}
	}
	assert.True(t, transientStarted, "global lifecycle broadcast delivered across replicas")

	// REST reads on replica 2 agree with replica 1's run.
	detail := app2.GetConsultation(t, consultationID)
	assert.Equal(t, "complete", detail["state"])
	assert.Equal(t, "use postgres with redis cache", detail["recommendation"])
	assert.Equal(t, false, detail["running"], "the run never lived on replica 2")

	list := app2.ListConsultations(t, "")
	assert.Equal(t, float64(1), list["total_count"])

	// Only replica 1's providers did any work.
	assert.Equal(t, 9, TotalCalls(app1.Providers))
	assert.Equal(t, 0, TotalCalls(app2.Providers))
}
