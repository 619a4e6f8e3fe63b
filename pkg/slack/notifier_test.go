package slack

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/models"
)

// captureServer records posted Slack blocks. The notifier posts from a
// background goroutine, so capture is mutex-guarded and tests poll.
type captureServer struct {
	srv *httptest.Server

	mu     sync.Mutex
	blocks []string
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	c := &captureServer{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		c.mu.Lock()
		c.blocks = append(c.blocks, r.FormValue("blocks"))
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1503435956.000247"}`))
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *captureServer) service() *Service {
	client := NewClientWithAPIURL("xoxb-test", "C123", c.srv.URL+"/")
	return NewServiceWithClient(client, "https://dash.example.com")
}

func (c *captureServer) posted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.blocks))
	copy(out, c.blocks)
	return out
}

func completedPayload(t *testing.T, res models.ConsultationResult) events.ConsultationCompletedPayload {
	t.Helper()
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	return events.ConsultationCompletedPayload{
		Type:           events.TopicConsultationCompleted,
		ConsultationID: res.ConsultationID,
		Result:         raw,
	}
}

func TestAttachNotifier_NilService(t *testing.T) {
	bus := events.NewBus()
	AttachNotifier(bus, nil, "cons-1")

	// Should not panic
	bus.Publish(events.TopicConsultationCompleted, completedPayload(t, models.ConsultationResult{
		ConsultationID: "cons-1",
		State:          models.StateComplete,
	}))
}

func TestAttachNotifier_PostsVerdictOnCompleted(t *testing.T) {
	capture := newCaptureServer(t)
	bus := events.NewBus()
	AttachNotifier(bus, capture.service(), "cons-9")

	conf := 0.82
	bus.Publish(events.TopicConsultationCompleted, completedPayload(t, models.ConsultationResult{
		ConsultationID: "cons-9",
		Question:       "Should we shard the events table?",
		State:          models.StateComplete,
		Recommendation: "Shard by consultation_id.",
		Confidence:     &conf,
		ActualCost:     0.0123,
	}))

	require.Eventually(t, func() bool {
		return len(capture.posted()) == 1
	}, 2*time.Second, 10*time.Millisecond, "notification never posted")

	blocks := capture.posted()[0]
	assert.Contains(t, blocks, "Consultation Complete")
	assert.Contains(t, blocks, "Shard by consultation_id.")
	assert.Contains(t, blocks, "https://dash.example.com/consultations/cons-9")
}

func TestAttachNotifier_CarriesLastErrorIntoFailedRun(t *testing.T) {
	capture := newCaptureServer(t)
	bus := events.NewBus()
	AttachNotifier(bus, capture.service(), "cons-2")

	bus.Publish(events.TopicError, events.ErrorPayload{
		Type:    events.TopicError,
		Message: "round 2: judge overloaded",
	})
	bus.Publish(events.TopicConsultationCompleted, completedPayload(t, models.ConsultationResult{
		ConsultationID: "cons-2",
		Question:       "q",
		State:          models.StateAborted,
	}))

	require.Eventually(t, func() bool {
		return len(capture.posted()) == 1
	}, 2*time.Second, 10*time.Millisecond, "notification never posted")

	blocks := capture.posted()[0]
	assert.Contains(t, blocks, "Consultation Aborted")
	assert.Contains(t, blocks, "judge overloaded")
}

func TestAttachNotifier_IgnoresUndecodableResult(t *testing.T) {
	capture := newCaptureServer(t)
	bus := events.NewBus()
	AttachNotifier(bus, capture.service(), "cons-3")

	bus.Publish(events.TopicConsultationCompleted, events.ConsultationCompletedPayload{
		Type:           events.TopicConsultationCompleted,
		ConsultationID: "cons-3",
		Result:         json.RawMessage(`{"state": 42`),
	})

	// Give the would-be goroutine a moment, then confirm nothing posted.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, capture.posted())
}
