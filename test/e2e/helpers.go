package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/ent"
	"github.com/conclave-ai/conclave/ent/agentresponse"
	"github.com/conclave-ai/conclave/ent/roundartifact"
	"github.com/conclave-ai/conclave/pkg/events"
)

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

// SubmitConsultation posts a question and returns the parsed response.
func (app *TestApp) SubmitConsultation(t *testing.T, question string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/consultations",
		map[string]interface{}{"question": question}, http.StatusAccepted)
}

// SubmitConsultationWith posts a full request body (question plus
// options) and returns the parsed response.
func (app *TestApp) SubmitConsultationWith(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/consultations", body, http.StatusAccepted)
}

// GetConsultation retrieves a consultation detail by ID.
func (app *TestApp) GetConsultation(t *testing.T, consultationID string) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/consultations/"+consultationID, http.StatusOK)
}

// GetConsultationExpect retrieves a consultation expecting a specific
// status code (404 for unknown IDs, etc.).
func (app *TestApp) GetConsultationExpect(t *testing.T, consultationID string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/consultations/"+consultationID, expectedStatus)
}

// ListConsultations calls GET /api/v1/consultations with optional query params.
func (app *TestApp) ListConsultations(t *testing.T, queryParams string) map[string]interface{} {
	t.Helper()
	path := "/api/v1/consultations"
	if queryParams != "" {
		path += "?" + queryParams
	}
	return app.getJSON(t, path, http.StatusOK)
}

// GetActiveConsultations calls GET /api/v1/consultations/active.
func (app *TestApp) GetActiveConsultations(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/consultations/active", http.StatusOK)
}

// CancelConsultation sends POST /api/v1/consultations/:id/cancel.
func (app *TestApp) CancelConsultation(t *testing.T, consultationID string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/consultations/"+consultationID+"/cancel", nil, http.StatusOK)
}

// CancelConsultationExpect cancels expecting a specific status code
// (409 for already-finished consultations).
func (app *TestApp) CancelConsultationExpect(t *testing.T, consultationID string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/consultations/"+consultationID+"/cancel", nil, expectedStatus)
}

// GetHealth calls GET /health.
func (app *TestApp) GetHealth(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/health", http.StatusOK)
}

// GetProvidersHealth calls GET /api/v1/providers/health.
func (app *TestApp) GetProvidersHealth(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/providers/health", http.StatusOK)
}

func (app *TestApp) postJSON(t *testing.T, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// ────────────────────────────────────────────────────────────
// Polling Helpers
// ────────────────────────────────────────────────────────────

// WaitForConsultationState polls the DB until the consultation reaches
// one of the expected states. Returns the state it landed on.
//
// Submit creates the row inside the background run, so immediately
// after POST the row may not exist yet; missing rows keep polling.
func (app *TestApp) WaitForConsultationState(t *testing.T, consultationID string, expected ...string) string {
	t.Helper()
	var actual string
	require.Eventually(t, func() bool {
		row, err := app.EntClient.Consultation.Get(context.Background(), consultationID)
		if err != nil {
			return false
		}
		actual = string(row.State)
		for _, exp := range expected {
			if actual == exp {
				return true
			}
		}
		return false
	}, 30*time.Second, 100*time.Millisecond,
		"consultation %s did not reach state %v (last: %s)", consultationID, expected, actual)
	return actual
}

// WaitForConsultationRow polls until the consultation row exists and
// returns it.
func (app *TestApp) WaitForConsultationRow(t *testing.T, consultationID string) *ent.Consultation {
	t.Helper()
	var row *ent.Consultation
	require.Eventually(t, func() bool {
		r, err := app.EntClient.Consultation.Get(context.Background(), consultationID)
		if err != nil {
			return false
		}
		row = r
		return true
	}, 30*time.Second, 100*time.Millisecond,
		"consultation row %s never appeared", consultationID)
	return row
}

// ────────────────────────────────────────────────────────────
// DB Query Helpers
// ────────────────────────────────────────────────────────────

// QueryConsultation fetches the consultation row, failing the test when
// it does not exist.
func (app *TestApp) QueryConsultation(t *testing.T, consultationID string) *ent.Consultation {
	t.Helper()
	row, err := app.EntClient.Consultation.Get(context.Background(), consultationID)
	require.NoError(t, err)
	return row
}

// QueryResponses returns all agent response rows for a consultation,
// ordered by round then creation time.
func (app *TestApp) QueryResponses(t *testing.T, consultationID string) []*ent.AgentResponse {
	t.Helper()
	rows, err := app.EntClient.AgentResponse.Query().
		Where(agentresponse.ConsultationID(consultationID)).
		Order(ent.Asc(agentresponse.FieldRound), ent.Asc(agentresponse.FieldCreatedAt)).
		All(context.Background())
	require.NoError(t, err)
	return rows
}

// QueryArtifacts returns all round artifact rows for a consultation,
// ordered by round.
func (app *TestApp) QueryArtifacts(t *testing.T, consultationID string) []*ent.RoundArtifact {
	t.Helper()
	rows, err := app.EntClient.RoundArtifact.Query().
		Where(roundartifact.ConsultationID(consultationID)).
		Order(ent.Asc(roundartifact.FieldRound)).
		All(context.Background())
	require.NoError(t, err)
	return rows
}

// ConsultationEvents returns the stored event log for a consultation's
// channel, oldest first. Row order is the authoritative timeline.
func (app *TestApp) ConsultationEvents(t *testing.T, consultationID string) []*ent.Event {
	t.Helper()
	rows, err := app.EventService.GetEventsSince(context.Background(),
		events.ConsultationChannel(consultationID), 0, 0)
	require.NoError(t, err)
	return rows
}

// StoredEventTypes extracts the payload "type" field from stored event
// rows, preserving order.
func StoredEventTypes(rows []*ent.Event) []string {
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		if typ, ok := row.Payload["type"].(string); ok {
			types = append(types, typ)
		}
	}
	return types
}

// FindStoredEvent returns the first stored event with the given type,
// or nil.
func FindStoredEvent(rows []*ent.Event, eventType string) *ent.Event {
	for _, row := range rows {
		if typ, _ := row.Payload["type"].(string); typ == eventType {
			return row
		}
	}
	return nil
}

// ────────────────────────────────────────────────────────────
// Event Assertion Helpers
// ────────────────────────────────────────────────────────────

// AssertSubsequence verifies that expected appears within actual in
// order. Extra and repeated actual entries are tolerated; only the
// expected sequence must be found.
func AssertSubsequence(t *testing.T, actual, expected []string) {
	t.Helper()
	idx := 0
	for _, a := range actual {
		if idx < len(expected) && a == expected[idx] {
			idx++
		}
	}
	if !assert.Equal(t, len(expected), idx,
		"expected sequence not found in order (matched %d/%d)", idx, len(expected)) {
		t.Logf("Expected (unmatched from %d): %s", idx, strings.Join(expected[idx:], ", "))
		t.Logf("Actual: %s", strings.Join(actual, ", "))
	}
}

// PersistentWSEvents filters a WS capture down to persisted events,
// deduplicated and sorted by db_event_id. A subscriber active during a
// run may see an event twice (NOTIFY plus catchup replay) and NOTIFY
// copies can arrive ahead of replayed history; row ID order restores
// the authoritative timeline. Infra frames and transient broadcasts
// carry no db_event_id and are dropped.
func PersistentWSEvents(wsEvents []WSEvent) []WSEvent {
	seen := make(map[float64]bool)
	var filtered []WSEvent
	for _, e := range wsEvents {
		dbID, ok := e.Parsed["db_event_id"].(float64)
		if !ok || seen[dbID] {
			continue
		}
		seen[dbID] = true
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool {
		idI, _ := filtered[i].Parsed["db_event_id"].(float64)
		idJ, _ := filtered[j].Parsed["db_event_id"].(float64)
		return idI < idJ
	})
	return filtered
}

// WSEventTypes extracts the type field from WS events, preserving order.
func WSEventTypes(wsEvents []WSEvent) []string {
	types := make([]string, 0, len(wsEvents))
	for _, e := range wsEvents {
		types = append(types, e.Type)
	}
	return types
}

// EventsForConsultation filters WS events down to those carrying the
// given consultation_id. Global-channel captures can interleave traffic
// from concurrent runs; assertions pin the run they care about.
func EventsForConsultation(wsEvents []WSEvent, consultationID string) []WSEvent {
	var filtered []WSEvent
	for _, e := range wsEvents {
		if id, _ := e.Parsed["consultation_id"].(string); id == consultationID {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// ────────────────────────────────────────────────────────────
// Misc
// ────────────────────────────────────────────────────────────

// ConsultationIDFrom pulls consultation_id out of a submit response.
func ConsultationIDFrom(t *testing.T, resp map[string]interface{}) string {
	t.Helper()
	id, ok := resp["consultation_id"].(string)
	require.True(t, ok, "response missing consultation_id: %v", resp)
	require.NotEmpty(t, id)
	return id
}

// FloatField reads a numeric field out of parsed JSON, failing the test
// when absent.
func FloatField(t *testing.T, m map[string]interface{}, key string) float64 {
	t.Helper()
	v, ok := m[key].(float64)
	require.True(t, ok, "field %s missing or not numeric: %v", key, m[key])
	return v
}

// wsURLWithChannels builds the WS URL with pre-subscribed channels.
func (app *TestApp) wsURLWithChannels(channels ...string) string {
	if len(channels) == 0 {
		return app.WSURL
	}
	return fmt.Sprintf("%s?channels=%s", app.WSURL, strings.Join(channels, ","))
}
