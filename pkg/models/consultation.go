// Package models contains the consultation domain types and business models.
package models

import "time"

// Agent describes one named participant in a consultation. Built from
// configuration at facade entry and stable for the duration of the run.
type Agent struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ProviderID  string `json:"provider_id"`
	Role        string `json:"role,omitempty"`
}

// TokenUsage is the token accounting of one or more provider calls.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Total += other.Total
}

// Cost is a token count plus its USD value. Used both for pre-flight
// estimates and for the actual accumulated spend.
type Cost struct {
	Tokens TokenUsage `json:"tokens"`
	USD    float64    `json:"usd"`
}

// AgentResponse records one dispatched provider call (including hedged
// substitutes and failures). Failed calls have empty Content and a
// populated ProviderError; they never carry partial text.
type AgentResponse struct {
	AgentID            string     `json:"agent_id"`
	ProviderID         string     `json:"provider_id"`
	Round              int        `json:"round"`
	Content            string     `json:"content"`
	Usage              TokenUsage `json:"usage"`
	LatencyMs          int64      `json:"latency_ms"`
	ProviderError      string     `json:"provider_error,omitempty"`
	Substituted        bool       `json:"substituted,omitempty"`
	SubstituteProvider string     `json:"substitute_provider,omitempty"`
}

// Failed reports whether this call produced no usable content.
func (r *AgentResponse) Failed() bool {
	return r.ProviderError != ""
}

// Responses groups the artifacts by round. Round 1 ordering matches the
// agent configuration order, not completion order.
type Responses struct {
	Round1 []*IndependentArtifact `json:"round1"`
	Round2 *SynthesisArtifact     `json:"round2,omitempty"`
	Round3 *CrossExamArtifact     `json:"round3,omitempty"`
	Round4 *VerdictArtifact       `json:"round4,omitempty"`
}

// PulseMetadata records watchdog activity for the final result.
type PulseMetadata struct {
	PulseTriggered        bool       `json:"pulse_triggered"`
	PulseTimestamp        *time.Time `json:"pulse_timestamp,omitempty"`
	UserCancelledViaPulse bool       `json:"user_cancelled_via_pulse"`
	TriggeredAgents       []string   `json:"triggered_agents,omitempty"`
}

// TokenEfficiencyStats reports how much inter-round filtering shrank the
// context handed to later rounds. Absent when filtering never ran.
type TokenEfficiencyStats struct {
	FilterEnabled        bool `json:"filter_enabled"`
	SynthesisCharsBefore int  `json:"synthesis_chars_before"`
	SynthesisCharsAfter  int  `json:"synthesis_chars_after"`
	CrossExamCharsBefore int  `json:"cross_exam_chars_before"`
	CrossExamCharsAfter  int  `json:"cross_exam_chars_after"`
}

// ConsultationResult is the single record returned by a consultation run.
// Partial runs (aborted, timed out, cost-rejected) are well-formed results
// carrying whatever artifacts had been produced.
type ConsultationResult struct {
	ConsultationID       string                `json:"consultation_id"`
	Question             string                `json:"question"`
	Mode                 Mode                  `json:"mode"`
	Timestamp            time.Time             `json:"timestamp"`
	DurationMs           int64                 `json:"duration_ms"`
	State                ConsultationState     `json:"state"`
	Responses            Responses             `json:"responses"`
	Recommendation       string                `json:"recommendation,omitempty"`
	Confidence           *float64              `json:"confidence,omitempty"`
	Dissent              []string              `json:"dissent"`
	Cost                 Cost                  `json:"cost"`
	EstimatedCost        Cost                  `json:"estimated_cost"`
	ActualCost           float64               `json:"actual_cost"`
	Agents               []Agent               `json:"agents"`
	AgentResponses       []AgentResponse       `json:"agent_responses"`
	ProjectContext       string                `json:"project_context,omitempty"`
	TokenEfficiencyStats *TokenEfficiencyStats `json:"token_efficiency_stats,omitempty"`
	PulseMetadata        *PulseMetadata        `json:"pulse_metadata,omitempty"`
}
