package e2e

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/pkg/interact"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// Scripted replies per round. The shapes satisfy the artifact extractor;
// tests that want failures swap individual replies for errors.

// PositionJSON returns a round-1 reply carrying the given position.
func PositionJSON(position string, confidence float64) string {
	return fmt.Sprintf(`{"position": %q, "key_points": ["k1", "k2"], "rationale": "because", "confidence": %.2f}`, position, confidence)
}

// SynthesisReply is a well-formed round-2 judge reply.
const SynthesisReply = `{
  "consensus_points": [
    {"point": "use postgres", "supporting_agents": ["architect", "pragmatist"], "confidence": 0.9}
  ],
  "tensions": [
    {"topic": "cache layer", "viewpoints": [
      {"agent": "architect", "viewpoint": "redis"},
      {"agent": "skeptic", "viewpoint": "in-process"}
    ]}
  ],
  "priority_order": ["cache layer"]
}`

// CrossExamReply returns a well-formed round-3 judge reply challenging
// the given agent.
func CrossExamReply(target string) string {
	return fmt.Sprintf(`{
  "challenges": [
    {"challenger": "skeptic", "target_agent": %q, "challenge": "latency numbers unsupported", "evidence": ["no benchmark cited"]}
  ],
  "rebuttals": [
    {"agent": %q, "rebuttal": "numbers come from the vendor docs"}
  ],
  "unresolved": ["cache layer"]
}`, target, target)
}

// VerdictJSON returns a round-4 judge reply with the given recommendation.
func VerdictJSON(recommendation string, confidence float64) string {
	return fmt.Sprintf(`{"recommendation": %q, "confidence": %.2f, "evidence": ["e1"], "dissent": ["skeptic prefers in-process cache"]}`, recommendation, confidence)
}

// Reply is one scripted provider turn.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// ScriptedProvider pops one reply per Chat call, in order. Calls past
// the end of the script fail, which surfaces miscounted dispatches as
// test failures rather than hangs.
type ScriptedProvider struct {
	name string

	mu      sync.Mutex
	replies []Reply
	calls   int
}

// NewScripted builds a provider that serves the given replies in order.
func NewScripted(name string, replies ...Reply) *ScriptedProvider {
	return &ScriptedProvider{name: name, replies: replies}
}

func (p *ScriptedProvider) Name() string { return p.name }

// Calls returns how many Chat calls the provider has served.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *ScriptedProvider) Chat(ctx context.Context, _ *provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	var r Reply
	if idx < len(p.replies) {
		r = p.replies[idx]
	} else {
		r = Reply{Err: fmt.Errorf("script for %s exhausted at call %d", p.name, idx+1)}
	}
	p.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &provider.ChatResponse{
		Text:  r.Text,
		Model: p.name + "-model",
		Usage: models.TokenUsage{Input: 120, Output: 80, Total: 200},
	}, nil
}

// HappyProviders scripts a full clean run: each panelist answers round 1
// and round 3, the judge answers rounds 2, 3 and 4.
func HappyProviders() map[string]*ScriptedProvider {
	return map[string]*ScriptedProvider{
		"prov-a": NewScripted("prov-a",
			Reply{Text: PositionJSON("use postgres with redis cache", 0.8)},
			Reply{Text: "The skeptic's in-process cache won't survive a second replica."}),
		"prov-b": NewScripted("prov-b",
			Reply{Text: PositionJSON("use postgres, defer caching", 0.7)},
			Reply{Text: "Neither cache position cites production numbers."}),
		"prov-c": NewScripted("prov-c",
			Reply{Text: PositionJSON("postgres with in-process cache", 0.6)},
			Reply{Text: "Redis is an operational burden the team has not costed."}),
		"prov-judge": NewScripted("prov-judge",
			Reply{Text: SynthesisReply},
			Reply{Text: CrossExamReply("architect")},
			Reply{Text: VerdictJSON("use postgres with redis cache", 0.85)}),
	}
}

// TotalCalls sums Chat calls across a provider map.
func TotalCalls(providers map[string]*ScriptedProvider) int {
	n := 0
	for _, p := range providers {
		n += p.Calls()
	}
	return n
}

// healthyStub reports every provider as Healthy and swallows updates.
// The harness never starts a probing monitor: probes would consume
// scripted replies.
type healthyStub struct{}

func (healthyStub) GetHealth(id string) (*models.ProviderHealth, error) {
	return &models.ProviderHealth{ProviderID: id, Status: models.HealthStateHealthy}, nil
}

func (healthyStub) UpdateStatus(string, bool, time.Duration) {}

// ScriptedPrompter answers Confirm prompts with a fixed bool and failure
// prompts with a fixed action. Used by interactive runs driven directly
// through the engine.
type ScriptedPrompter struct {
	ConfirmAnswer bool
	FailureAnswer interact.FailureAction
}

func (p *ScriptedPrompter) Confirm(_ context.Context, _ string, _ bool) (bool, error) {
	return p.ConfirmAnswer, nil
}

func (p *ScriptedPrompter) ChooseFailureAction(_ context.Context, _ *interact.FailurePrompt) (interact.FailureAction, error) {
	if p.FailureAnswer.IsValid() {
		return p.FailureAnswer, nil
	}
	return interact.ActionSkip, nil
}
