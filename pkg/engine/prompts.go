package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/provider"
)

// Prompt templates for the four rounds. Each system prompt pins the
// persona and the exact JSON shape the extractor parses; the user
// message carries the question and any prior-round artifacts.

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else: no markdown fences, no prose before or after it."

const independentSystemTemplate = `You are %s, one voice on a small expert panel deliberating a technical question.%s

Form your own position. Do not hedge toward an imagined consensus and do not guess what the other panelists will say; they cannot see your answer and you cannot see theirs.

%s
{
  "position": "your recommendation in one or two sentences",
  "key_points": ["the strongest concrete arguments for your position"],
  "rationale": "the reasoning that leads you to this position",
  "confidence": 0.0
}
"confidence" is your certainty in the position, from 0.0 to 1.0.`

const synthesisSystemTemplate = `You are the judge of an expert panel. The panelists answered the same question independently; your job is to map where they agree and where they genuinely differ. Do not resolve disagreements or add positions of your own.

%s
{
  "consensus_points": [
    {"point": "a claim multiple panelists support", "supporting_agents": ["agent ids"], "confidence": 0.0}
  ],
  "tensions": [
    {"topic": "what they disagree about", "viewpoints": [{"agent": "agent id", "viewpoint": "that agent's stance"}]}
  ],
  "priority_order": ["tension topics ordered by how much they matter to the final answer"]
}`

const crossExamSystemTemplate = `You are %s on an expert panel.%s The judge has summarized where the panel agrees and disagrees. Your position is under scrutiny.

Do two things, in plain prose:
1. Challenge the weakest claims of the other panelists by id. Be specific about why each claim fails and what evidence undermines it.
2. Defend your own position against the tensions the judge identified. Concede points you cannot defend.

Stay focused on the listed tensions. Do not restate your full position.`

const consolidationSystemTemplate = `You are the judge of an expert panel, consolidating the panel's cross-examination into a structured record. Attribute every challenge and rebuttal to the panelist who made it, using only the agent ids listed in the transcript. Record disputes nobody resolved under "unresolved".

%s
{
  "challenges": [
    {"challenger": "agent id", "target_agent": "agent id", "challenge": "the claim under attack and why", "evidence": ["supporting evidence"]}
  ],
  "rebuttals": [
    {"agent": "agent id", "rebuttal": "how the agent defended the challenged claim"}
  ],
  "unresolved": ["disputes that remain open after the exchange"]
}`

const verdictSystemTemplate = `You are the judge of an expert panel delivering the final verdict. Weigh the panel's positions, the synthesis, and how each position held up under cross-examination. Positions that survived challenge count for more than positions nobody tested.

Commit to one recommendation. Preserve real disagreement in "dissent" instead of papering over it.

%s
{
  "recommendation": "the single recommendation the asker should act on",
  "confidence": 0.0,
  "evidence": ["the strongest reasons supporting the recommendation"],
  "dissent": ["substantive disagreement that survived deliberation, attributed by agent id"]
}
"confidence" is your certainty in the recommendation, from 0.0 to 1.0.`

// independentPrompt builds the round-1 prompt for one panelist. The
// project context block rides only on this round; later rounds work
// from artifacts.
func independentPrompt(agent models.Agent, projectContext, question string) (string, []provider.Message) {
	system := fmt.Sprintf(independentSystemTemplate, agent.DisplayName, roleClause(agent.Role), jsonOnlyInstruction)

	var b strings.Builder
	if projectContext != "" {
		b.WriteString("## Project context\n\n")
		b.WriteString(projectContext)
		b.WriteString("\n\n")
	}
	b.WriteString("## Question\n\n")
	b.WriteString(question)

	return system, userMessage(b.String())
}

// synthesisPrompt builds the judge's round-2 prompt over the surviving
// round-1 positions.
func synthesisPrompt(question string, positions []*models.IndependentArtifact) (string, []provider.Message) {
	system := fmt.Sprintf(synthesisSystemTemplate, jsonOnlyInstruction)

	var b strings.Builder
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Panel positions\n")
	for _, pos := range positions {
		fmt.Fprintf(&b, "\n### %s\n\n%s\n", pos.AgentID, artifactJSON(pos))
	}

	return system, userMessage(b.String())
}

// crossExamPrompt builds one panelist's round-3 prompt: their own
// round-1 position plus the judge's synthesis.
func crossExamPrompt(agent models.Agent, own *models.IndependentArtifact, synthesis *models.SynthesisArtifact, question string) (string, []provider.Message) {
	system := fmt.Sprintf(crossExamSystemTemplate, agent.DisplayName, roleClause(agent.Role))

	var b strings.Builder
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Your round-1 position\n\n")
	b.WriteString(artifactJSON(own))
	b.WriteString("\n\n## Judge's synthesis\n\n")
	b.WriteString(artifactJSON(synthesis))

	return system, userMessage(b.String())
}

// consolidationPrompt builds the judge's prompt over the round-3
// transcript. Contributions appear in panel order.
func consolidationPrompt(question string, contributions []contribution, synthesis *models.SynthesisArtifact) (string, []provider.Message) {
	system := fmt.Sprintf(consolidationSystemTemplate, jsonOnlyInstruction)

	var b strings.Builder
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Synthesis under examination\n\n")
	b.WriteString(artifactJSON(synthesis))
	b.WriteString("\n\n## Cross-examination transcript\n")
	for _, c := range contributions {
		fmt.Fprintf(&b, "\n### %s\n\n%s\n", c.agentID, strings.TrimSpace(c.text))
	}

	return system, userMessage(b.String())
}

// verdictPrompt builds the judge's round-4 prompt. Round-1 positions
// ride along only in verbose runs; the filtered synthesis and
// cross-exam are the default evidence base.
func verdictPrompt(question string, synthesis *models.SynthesisArtifact, crossExam *models.CrossExamArtifact, positions []*models.IndependentArtifact) (string, []provider.Message) {
	system := fmt.Sprintf(verdictSystemTemplate, jsonOnlyInstruction)

	var b strings.Builder
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Synthesis\n\n")
	b.WriteString(artifactJSON(synthesis))
	b.WriteString("\n\n## Cross-examination\n\n")
	b.WriteString(artifactJSON(crossExam))
	if len(positions) > 0 {
		b.WriteString("\n\n## Original positions\n")
		for _, pos := range positions {
			fmt.Fprintf(&b, "\n### %s\n\n%s\n", pos.AgentID, artifactJSON(pos))
		}
	}

	return system, userMessage(b.String())
}

func roleClause(role string) string {
	if role == "" {
		return ""
	}
	return " " + strings.TrimSpace(role)
}

func userMessage(content string) []provider.Message {
	return []provider.Message{{Role: "user", Content: content}}
}

// artifactJSON renders an artifact for inclusion in a prompt. The
// types marshal cleanly; a failure would be a programming error, so the
// fallback is an empty object rather than a panic mid-consultation.
func artifactJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
