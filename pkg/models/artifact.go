package models

import "time"

// Artifact is implemented by all four round artifact types.
// Artifacts are immutable once created; they are owned by the
// ConsultationResult and serialised with snake_case field names.
type Artifact interface {
	Kind() ArtifactType
	Round() int
}

// IndependentArtifact is one agent's round-1 position, formed without
// seeing any other agent's output.
type IndependentArtifact struct {
	ArtifactType ArtifactType `json:"artifact_type"`
	AgentID      string       `json:"agent_id"`
	Position     string       `json:"position"`
	KeyPoints    []string     `json:"key_points"`
	Rationale    string       `json:"rationale"`
	Confidence   float64      `json:"confidence"` // clamped to [0,1]
	ProseExcerpt string       `json:"prose_excerpt"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Kind implements Artifact
func (a *IndependentArtifact) Kind() ArtifactType { return ArtifactTypeIndependent }

// Round implements Artifact
func (a *IndependentArtifact) Round() int { return 1 }

// ConsensusPoint is a position shared by two or more agents.
type ConsensusPoint struct {
	Point            string   `json:"point"`
	SupportingAgents []string `json:"supporting_agents"`
	Confidence       float64  `json:"confidence"`
}

// Viewpoint is one agent's side of a tension.
type Viewpoint struct {
	Agent     string `json:"agent"`
	Viewpoint string `json:"viewpoint"`
}

// Tension is a topic on which the round-1 positions disagree.
type Tension struct {
	Topic      string      `json:"topic"`
	Viewpoints []Viewpoint `json:"viewpoints"`
}

// SynthesisArtifact is the judge's round-2 digest of all independent
// positions: where they agree, where they clash, and what matters most.
type SynthesisArtifact struct {
	ArtifactType    ArtifactType     `json:"artifact_type"`
	RoundNumber     int              `json:"round_number"` // always 2
	ConsensusPoints []ConsensusPoint `json:"consensus_points"`
	Tensions        []Tension        `json:"tensions"`
	PriorityOrder   []string         `json:"priority_order"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Kind implements Artifact
func (a *SynthesisArtifact) Kind() ArtifactType { return ArtifactTypeSynthesis }

// Round implements Artifact
func (a *SynthesisArtifact) Round() int { return 2 }

// Challenge is one agent questioning another agent's round-1 position.
type Challenge struct {
	Challenger  string   `json:"challenger"`
	TargetAgent string   `json:"target_agent"` // must reference a round-1 agent
	Challenge   string   `json:"challenge"`
	Evidence    []string `json:"evidence"`
}

// Rebuttal is an agent's defence against challenges to its position.
type Rebuttal struct {
	Agent    string `json:"agent"`
	Rebuttal string `json:"rebuttal"`
}

// CrossExamArtifact is the consolidated round-3 cross-examination:
// challenges raised, rebuttals given, and disagreements left standing.
type CrossExamArtifact struct {
	ArtifactType ArtifactType `json:"artifact_type"`
	RoundNumber  int          `json:"round_number"` // always 3
	Challenges   []Challenge  `json:"challenges"`
	Rebuttals    []Rebuttal   `json:"rebuttals"`
	Unresolved   []string     `json:"unresolved"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Kind implements Artifact
func (a *CrossExamArtifact) Kind() ArtifactType { return ArtifactTypeCrossExam }

// Round implements Artifact
func (a *CrossExamArtifact) Round() int { return 3 }

// VerdictArtifact is the judge's round-4 final recommendation.
type VerdictArtifact struct {
	ArtifactType   ArtifactType `json:"artifact_type"`
	RoundNumber    int          `json:"round_number"` // always 4
	Recommendation string       `json:"recommendation"`
	Confidence     float64      `json:"confidence"` // clamped to [0,1]
	Evidence       []string     `json:"evidence"`
	Dissent        []string     `json:"dissent"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Kind implements Artifact
func (a *VerdictArtifact) Kind() ArtifactType { return ArtifactTypeVerdict }

// Round implements Artifact
func (a *VerdictArtifact) Round() int { return 4 }
