package e2e

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/events"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// ────────────────────────────────────────────────────────────
// Scenario 1: Full Deliberation (flagship)
// ────────────────────────────────────────────────────────────

// A complete four-round run over the HTTP API with WebSocket streaming.
// Verifies the persisted record, the stored event timeline, and the live
// stream all agree on what happened.
func TestConsultationHappyPath(t *testing.T) {
	app := NewTestApp(t)

	// Subscribe to the global list channel before submitting so the
	// transient lifecycle broadcasts are caught live.
	ctx := context.Background()
	ws, err := WSConnect(ctx, app.wsURLWithChannels(events.GlobalConsultationsChannel))
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()
	_, err = ws.WaitForEventType("connection.established", 5*time.Second)
	require.NoError(t, err)

	resp := app.SubmitConsultation(t, "Which database should we use?")
	consultationID := ConsultationIDFrom(t, resp)
	assert.Equal(t, "pending", resp["status"])

	// Late subscription to the consultation channel: auto-catchup
	// replays whatever was persisted before LISTEN became active.
	require.NoError(t, ws.Subscribe(events.ConsultationChannel(consultationID)))

	state := app.WaitForConsultationState(t, consultationID, string(models.StateComplete))
	require.Equal(t, string(models.StateComplete), state)

	// The completion event row commits before its NOTIFY, so seeing it
	// on the socket means the stored timeline is final.
	_, err = ws.WaitForConsultationEvent(events.TopicConsultationCompleted, consultationID, 10*time.Second)
	require.NoError(t, err)

	// 3 + 1 + (3+1) + 1 provider calls across the four rounds.
	assert.Equal(t, 9, TotalCalls(app.Providers))
	assert.Equal(t, 3, app.Providers["prov-judge"].Calls(), "judge answers rounds 2, 3 and 4")

	// Persisted consultation row.
	row := app.QueryConsultation(t, consultationID)
	assert.Equal(t, "Which database should we use?", row.Question)
	assert.Equal(t, "consult", string(row.Mode))
	require.NotNil(t, row.Recommendation)
	assert.Equal(t, "use postgres with redis cache", *row.Recommendation)
	require.NotNil(t, row.Confidence)
	assert.InDelta(t, 0.85, *row.Confidence, 1e-9)
	assert.NotEmpty(t, row.Dissent)
	require.NotNil(t, row.StartedAt)
	require.NotNil(t, row.CompletedAt)
	assert.Greater(t, row.EstimatedCostUsd, 0.0)
	assert.Greater(t, row.ActualCostUsd, 0.0)
	assert.Equal(t, 9*200, row.TotalTokens, "usage accumulated across all calls")
	assert.Len(t, row.Agents, 3)
	assert.Nil(t, row.ErrorMessage)

	// One response row per call, one artifact row per accepted artifact.
	responses := app.QueryResponses(t, consultationID)
	assert.Len(t, responses, 9)
	artifacts := app.QueryArtifacts(t, consultationID)
	require.Len(t, artifacts, 6, "3 independent + synthesis + cross-exam + verdict")
	assert.Equal(t, "verdict", string(artifacts[5].ArtifactType))

	// Stored event log: row order is the timeline.
	stored := app.ConsultationEvents(t, consultationID)
	types := StoredEventTypes(stored)
	AssertSubsequence(t, types, []string{
		events.TopicConsultationStarted,
		events.TopicCostEstimated,
		events.TopicRoundStart,
		events.TopicRoundCompleted,
		events.TopicRoundStart,
		events.TopicRoundCompleted,
		events.TopicRoundStart,
		events.TopicRoundCompleted,
		events.TopicRoundStart,
		events.TopicRoundCompleted,
		events.TopicConsultationCompleted,
	})
	counts := map[string]int{}
	for _, typ := range types {
		counts[typ]++
	}
	assert.Equal(t, 4, counts[events.TopicRoundStart])
	assert.Equal(t, 4, counts[events.TopicRoundCompleted])
	assert.Equal(t, 9, counts[events.TopicAgentThinking])
	assert.Equal(t, 9, counts[events.TopicAgentCompleted])
	assert.Equal(t, 6, counts[events.TopicRoundArtifact])
	assert.Equal(t, 1, counts[events.TopicConsultationCompleted])
	assert.Zero(t, counts[events.TopicUserConsent], "gate never engaged")
	assert.Zero(t, counts[events.TopicError])
	assert.Len(t, stored, 35)

	// Deduplicated by row ID, the socket saw exactly the stored log.
	persistent := PersistentWSEvents(ws.Events())
	assert.Equal(t, types, WSEventTypes(persistent), "live stream matches the stored timeline")

	// The global list channel got a transient lifecycle copy.
	var transientStarted bool
	for _, e := range EventsForConsultation(ws.EventsByType(events.TopicConsultationStarted), consultationID) {
		if _, ok := e.Parsed["db_event_id"]; !ok {
			transientStarted = true
		}
	}
	assert.True(t, transientStarted, "started broadcast on the consultations channel")

	// HTTP detail agrees with everything above.
	detail := app.GetConsultation(t, consultationID)
	assert.Equal(t, "complete", detail["state"])
	assert.Equal(t, false, detail["running"])
	assert.Equal(t, "use postgres with redis cache", detail["recommendation"])
	assert.InDelta(t, 0.85, FloatField(t, detail, "confidence"), 1e-9)
	assert.Greater(t, FloatField(t, detail, "actual_cost"), 0.0)
	responsesJSON, ok := detail["responses"].(map[string]interface{})
	require.True(t, ok)
	round1, ok := responsesJSON["round1"].([]interface{})
	require.True(t, ok)
	assert.Len(t, round1, 3)
	assert.NotNil(t, responsesJSON["round2"])
	assert.NotNil(t, responsesJSON["round3"])
	assert.NotNil(t, responsesJSON["round4"])
}

// ────────────────────────────────────────────────────────────
// Scenario 2: Advisor Failure Does Not Sink the Run
// ────────────────────────────────────────────────────────────

func TestConsultationAdvisorFailureSurvives(t *testing.T) {
	providers := HappyProviders()
	// The pragmatist's provider fails round 1; the script's second entry
	// then serves its round-3 slot, which must never be requested.
	providers["prov-b"] = NewScripted("prov-b",
		Reply{Err: errors.New("rate limited")},
		Reply{Text: "must not be called"})
	app := NewTestApp(t, WithProviders(providers))

	resp := app.SubmitConsultation(t, "Which database should we use?")
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateComplete))
	require.Equal(t, string(models.StateComplete), state)

	// 3+1+(2+1)+1: the failed advisor is dispatched once, then excluded.
	assert.Equal(t, 8, TotalCalls(app.Providers))
	assert.Equal(t, 1, app.Providers["prov-b"].Calls())

	row := app.QueryConsultation(t, consultationID)
	require.NotNil(t, row.Recommendation)
	assert.Nil(t, row.ErrorMessage, "a lost advisor is not a run error")

	// The failed call is recorded with its provider error.
	responses := app.QueryResponses(t, consultationID)
	assert.Len(t, responses, 8)
	var foundFailed bool
	for _, r := range responses {
		if r.AgentID != "pragmatist" || r.Round != 1 {
			continue
		}
		foundFailed = true
		require.NotNil(t, r.ProviderError)
		assert.Contains(t, *r.ProviderError, "rate limited")
		assert.Empty(t, r.Content)
	}
	require.True(t, foundFailed, "failed call persisted")

	// Round 1 kept two positions; later rounds produced one artifact each.
	artifacts := app.QueryArtifacts(t, consultationID)
	assert.Len(t, artifacts, 5)
	independents := 0
	for _, a := range artifacts {
		if a.Round == 1 {
			independents++
		}
	}
	assert.Equal(t, 2, independents)

	// The stream reported the failure; a provider error is not an error
	// event, just an unsuccessful completion.
	stored := app.ConsultationEvents(t, consultationID)
	var failedCompleted bool
	for _, evt := range stored {
		if typ, _ := evt.Payload["type"].(string); typ != events.TopicAgentCompleted {
			continue
		}
		if agentID, _ := evt.Payload["agent_id"].(string); agentID != "pragmatist" {
			continue
		}
		success, _ := evt.Payload["success"].(bool)
		assert.False(t, success)
		failedCompleted = true
	}
	assert.True(t, failedCompleted, "agent:completed with success=false for the failed advisor")
	assert.Nil(t, FindStoredEvent(stored, events.TopicError))
}

// ────────────────────────────────────────────────────────────
// Scenario 3: Quick Mode
// ────────────────────────────────────────────────────────────

func TestConsultationQuickMode(t *testing.T) {
	app := NewTestApp(t)

	resp := app.SubmitConsultationWith(t, map[string]interface{}{
		"question": "Is the cache worth it?",
		"options":  map[string]interface{}{"mode": "quick"},
	})
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateComplete))
	require.Equal(t, string(models.StateComplete), state)

	assert.Equal(t, 3, TotalCalls(app.Providers), "one call per advisor")
	assert.Equal(t, 0, app.Providers["prov-judge"].Calls(), "judge untouched in quick mode")

	row := app.QueryConsultation(t, consultationID)
	assert.Equal(t, "quick", string(row.Mode))
	assert.Nil(t, row.Recommendation, "no verdict without round 4")

	artifacts := app.QueryArtifacts(t, consultationID)
	assert.Len(t, artifacts, 3, "independent positions only")

	// Exactly one round ran.
	types := StoredEventTypes(app.ConsultationEvents(t, consultationID))
	counts := map[string]int{}
	for _, typ := range types {
		counts[typ]++
	}
	assert.Equal(t, 1, counts[events.TopicRoundStart])
	assert.Equal(t, 1, counts[events.TopicRoundCompleted])

	detail := app.GetConsultation(t, consultationID)
	responsesJSON, ok := detail["responses"].(map[string]interface{})
	require.True(t, ok)
	round1, _ := responsesJSON["round1"].([]interface{})
	assert.Len(t, round1, 3)
	assert.Nil(t, responsesJSON["round2"])
}

// ────────────────────────────────────────────────────────────
// Scenario 4: Round 1 Wipeout
// ────────────────────────────────────────────────────────────

func TestConsultationAllAdvisorsFail(t *testing.T) {
	providers := map[string]*ScriptedProvider{
		"prov-a":     NewScripted("prov-a", Reply{Err: errors.New("down")}),
		"prov-b":     NewScripted("prov-b", Reply{Err: errors.New("down")}),
		"prov-c":     NewScripted("prov-c", Reply{Err: errors.New("down")}),
		"prov-judge": NewScripted("prov-judge", Reply{Text: SynthesisReply}),
	}
	app := NewTestApp(t, WithProviders(providers))

	resp := app.SubmitConsultation(t, "q")
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateAborted))
	require.Equal(t, string(models.StateAborted), state)

	assert.Equal(t, 0, providers["prov-judge"].Calls(), "round 2 never entered")

	row := app.QueryConsultation(t, consultationID)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "all agents failed")

	// Every failed call persisted; no artifact was accepted.
	assert.Len(t, app.QueryResponses(t, consultationID), 3)
	assert.Empty(t, app.QueryArtifacts(t, consultationID))

	// The failure and the terminal completion both reached the log.
	AssertSubsequence(t, StoredEventTypes(app.ConsultationEvents(t, consultationID)), []string{
		events.TopicConsultationStarted,
		events.TopicError,
		events.TopicConsultationCompleted,
	})

	detail := app.GetConsultation(t, consultationID)
	assert.Equal(t, "aborted", detail["state"])
	assert.Contains(t, detail["error_message"], "all agents failed")
}

// ────────────────────────────────────────────────────────────
// Scenario 5: Hedged Backup Wins
// ────────────────────────────────────────────────────────────

func TestConsultationHedgedBackupWins(t *testing.T) {
	providers := HappyProviders()
	// Architect's primary stalls past the hedge delay and a backup from
	// its tier takes over. Primary and backup sit alone in the cheap
	// tier so selection cannot wander off to another advisor's provider.
	providers["prov-a"] = NewScripted("prov-a",
		Reply{Text: PositionJSON("slow but right", 0.8), Delay: 2 * time.Second},
		Reply{Text: "Redis still wins on multi-replica consistency."})
	backup := NewScripted("prov-backup",
		Reply{Text: PositionJSON("backup position", 0.75)})

	cfg := DefaultPanelConfig()
	cfg.Defaults.HedgeDelayMS = 50
	app := NewTestApp(t, WithConfig(cfg), WithProviders(providers),
		WithExtraEntries(map[string]*provider.Entry{
			"prov-a":      {Provider: providers["prov-a"], Tier: models.TierCheap},
			"prov-backup": {Provider: backup, Tier: models.TierCheap},
		}))

	resp := app.SubmitConsultation(t, "q")
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateComplete))
	require.Equal(t, string(models.StateComplete), state)

	// The architect's round-1 row is attributed to the backup.
	var architectR1Found bool
	for _, r := range app.QueryResponses(t, consultationID) {
		if r.AgentID != "architect" || r.Round != 1 {
			continue
		}
		architectR1Found = true
		assert.True(t, r.Substituted)
		require.NotNil(t, r.SubstituteProvider)
		assert.Equal(t, "prov-backup", *r.SubstituteProvider)
		assert.Equal(t, "prov-a", r.ProviderID)
	}
	require.True(t, architectR1Found)

	// The substitution was announced on the stream.
	sub := FindStoredEvent(app.ConsultationEvents(t, consultationID), events.TopicProviderSubstituted)
	require.NotNil(t, sub, "provider_substituted event persisted")
	assert.Equal(t, "architect", sub.Payload["agent_id"])
	assert.Equal(t, "prov-a", sub.Payload["original_provider"])
	assert.Equal(t, "prov-backup", sub.Payload["substitute_provider"])
	assert.Equal(t, events.SubstitutionReasonTimeout, sub.Payload["reason"])
}

// ────────────────────────────────────────────────────────────
// Scenario 6: Cost Gate
// ────────────────────────────────────────────────────────────

// A near-zero gate with no pre-approved consent: HTTP runs are
// unattended, the policy declines, and no provider is ever called.
func TestConsultationCostRejected(t *testing.T) {
	cfg := DefaultPanelConfig()
	tiny := 0.0000001
	cfg.Defaults.CostGateUSD = &tiny
	app := NewTestApp(t, WithConfig(cfg))

	resp := app.SubmitConsultation(t, "q")
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateCostRejected))
	require.Equal(t, string(models.StateCostRejected), state)

	assert.Equal(t, 0, TotalCalls(app.Providers), "no provider call without consent")

	row := app.QueryConsultation(t, consultationID)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "consent was declined")
	assert.Greater(t, row.EstimatedCostUsd, 0.0)
	assert.Zero(t, row.ActualCostUsd)

	// The estimate, the declined consent, and the terminal completion
	// are all on the record.
	stored := app.ConsultationEvents(t, consultationID)
	AssertSubsequence(t, StoredEventTypes(stored), []string{
		events.TopicConsultationStarted,
		events.TopicCostEstimated,
		events.TopicUserConsent,
		events.TopicError,
		events.TopicConsultationCompleted,
	})
	estimated := FindStoredEvent(stored, events.TopicCostEstimated)
	require.NotNil(t, estimated)
	assert.Equal(t, true, estimated.Payload["proceed_required"])
	consent := FindStoredEvent(stored, events.TopicUserConsent)
	require.NotNil(t, consent)
	assert.Equal(t, false, consent.Payload["accepted"])

	detail := app.GetConsultation(t, consultationID)
	assert.Equal(t, "cost_rejected", detail["state"])
}

// The same gate with consent pre-approved in the request options.
func TestConsultationCostConsentProceeds(t *testing.T) {
	cfg := DefaultPanelConfig()
	tiny := 0.0000001
	cfg.Defaults.CostGateUSD = &tiny
	app := NewTestApp(t, WithConfig(cfg))

	resp := app.SubmitConsultationWith(t, map[string]interface{}{
		"question": "q",
		"options":  map[string]interface{}{"cost_consent": true},
	})
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateComplete))
	require.Equal(t, string(models.StateComplete), state)
	assert.Equal(t, 9, TotalCalls(app.Providers))

	consent := FindStoredEvent(app.ConsultationEvents(t, consultationID), events.TopicUserConsent)
	require.NotNil(t, consent)
	assert.Equal(t, true, consent.Payload["accepted"])
}

// ────────────────────────────────────────────────────────────
// Scenario 7: Pulse Cancellation
// ────────────────────────────────────────────────────────────

// The HTTP surface never prompts, so an interactive run is driven
// directly through the engine: the skeptic stalls past the pulse
// threshold, the prompter answers "stop waiting", and the run completes
// without it. Persistence and the event plane are still the real wiring.
func TestConsultationPulseCancel(t *testing.T) {
	providers := HappyProviders()
	providers["prov-c"] = NewScripted("prov-c",
		Reply{Text: PositionJSON("too slow", 0.5), Delay: 5 * time.Second})

	cfg := DefaultPanelConfig()
	cfg.Defaults.PulseThresholdMS = 60
	app := NewTestApp(t, WithConfig(cfg), WithProviders(providers),
		WithPrompter(&ScriptedPrompter{ConfirmAnswer: false}))

	result, err := app.Engine.Consult(context.Background(),
		"Which database should we use?", "", &engine.Options{Interactive: true})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.StateComplete, result.State)

	consultationID := result.ConsultationID

	// The watchdog's activity is part of the persisted record.
	row := app.QueryConsultation(t, consultationID)
	require.NotNil(t, row.PulseMetadata)
	assert.True(t, row.PulseMetadata.PulseTriggered)
	assert.True(t, row.PulseMetadata.UserCancelledViaPulse)
	assert.Contains(t, row.PulseMetadata.TriggeredAgents, "skeptic")

	cancelEvt := FindStoredEvent(app.ConsultationEvents(t, consultationID), events.TopicPulseCancel)
	require.NotNil(t, cancelEvt, "pulse_cancel event persisted")
	assert.Equal(t, "skeptic", cancelEvt.Payload["agent_id"])

	// The cancelled agent's row records the pulse verdict.
	var skepticFound bool
	for _, r := range app.QueryResponses(t, consultationID) {
		if r.AgentID == "skeptic" && r.Round == 1 {
			skepticFound = true
			require.NotNil(t, r.ProviderError)
			assert.Contains(t, *r.ProviderError, "pulse")
		}
	}
	require.True(t, skepticFound)
}

// ────────────────────────────────────────────────────────────
// Scenario 8: Consultation Timeout
// ────────────────────────────────────────────────────────────

func TestConsultationTimeout(t *testing.T) {
	providers := map[string]*ScriptedProvider{
		"prov-a":     NewScripted("prov-a", Reply{Text: PositionJSON("p", 0.5), Delay: 2 * time.Second}),
		"prov-b":     NewScripted("prov-b", Reply{Text: PositionJSON("p", 0.5), Delay: 2 * time.Second}),
		"prov-c":     NewScripted("prov-c", Reply{Text: PositionJSON("p", 0.5), Delay: 2 * time.Second}),
		"prov-judge": NewScripted("prov-judge", Reply{Text: SynthesisReply, Delay: 2 * time.Second}),
	}
	app := NewTestApp(t, WithProviders(providers))

	resp := app.SubmitConsultationWith(t, map[string]interface{}{
		"question": "q",
		"options":  map[string]interface{}{"timeout_ms": 150},
	})
	consultationID := ConsultationIDFrom(t, resp)

	state := app.WaitForConsultationState(t, consultationID, string(models.StateTimedOut))
	require.Equal(t, string(models.StateTimedOut), state)

	row := app.QueryConsultation(t, consultationID)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "timed out")

	detail := app.GetConsultation(t, consultationID)
	assert.Equal(t, "timed_out", detail["state"])
	assert.Equal(t, false, detail["running"])
}

// ────────────────────────────────────────────────────────────
// Scenario 9: Submission Validation
// ────────────────────────────────────────────────────────────

func TestConsultationRejectsBadRequests(t *testing.T) {
	app := NewTestApp(t)

	app.postJSON(t, "/api/v1/consultations",
		map[string]interface{}{"question": "   "}, http.StatusBadRequest)

	app.postJSON(t, "/api/v1/consultations", map[string]interface{}{
		"question": strings.Repeat("x", 64*1024+1),
	}, http.StatusRequestEntityTooLarge)

	app.postJSON(t, "/api/v1/consultations", map[string]interface{}{
		"question": "q",
		"options":  map[string]interface{}{"bogus": true},
	}, http.StatusBadRequest)

	app.postJSON(t, "/api/v1/consultations", map[string]interface{}{
		"question": "q",
		"options":  map[string]interface{}{"mode": "debate"},
	}, http.StatusBadRequest)

	app.postJSON(t, "/api/v1/consultations", map[string]interface{}{
		"question": "q",
		"options":  map[string]interface{}{"max_rounds": 3},
	}, http.StatusBadRequest)

	assert.Equal(t, 0, TotalCalls(app.Providers), "validation failures never dispatch")
}
