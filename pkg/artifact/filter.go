package artifact

import (
	"sort"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Caps bounds how much of an upstream artifact flows into the next
// round's prompt.
type Caps struct {
	ConsensusPoints int `yaml:"consensus_points" json:"consensus_points"`
	Tensions        int `yaml:"tensions" json:"tensions"`
	Challenges      int `yaml:"challenges" json:"challenges"`
	Rebuttals       int `yaml:"rebuttals" json:"rebuttals"`
}

// DefaultCaps returns the built-in truncation caps.
func DefaultCaps() Caps {
	return Caps{ConsensusPoints: 5, Tensions: 3, Challenges: 6, Rebuttals: 6}
}

// Filter compacts inter-round artifacts. It is pure: inputs are never
// mutated and no new facts are invented, only dropped. Verbose mode
// passes artifacts through untouched.
type Filter struct {
	caps    Caps
	verbose bool
}

// NewFilter builds a filter with the given caps. verbose disables all
// truncation.
func NewFilter(caps Caps, verbose bool) *Filter {
	return &Filter{caps: caps, verbose: verbose}
}

// Synthesis compacts a round-2 artifact for the round-3 prompts. The
// highest-confidence consensus points survive; tensions are kept in
// priority order, topics named in the artifact's own priority_order
// ranking first.
func (f *Filter) Synthesis(a *models.SynthesisArtifact) *models.SynthesisArtifact {
	if f.verbose || a == nil {
		return a
	}
	if len(a.ConsensusPoints) <= f.caps.ConsensusPoints && len(a.Tensions) <= f.caps.Tensions {
		return a
	}

	out := *a
	if len(a.ConsensusPoints) > f.caps.ConsensusPoints {
		points := append([]models.ConsensusPoint(nil), a.ConsensusPoints...)
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Confidence > points[j].Confidence
		})
		out.ConsensusPoints = points[:f.caps.ConsensusPoints]
	}
	if len(a.Tensions) > f.caps.Tensions {
		rank := make(map[string]int, len(a.PriorityOrder))
		for i, topic := range a.PriorityOrder {
			rank[topic] = i
		}
		tensions := append([]models.Tension(nil), a.Tensions...)
		sort.SliceStable(tensions, func(i, j int) bool {
			return tensionRank(rank, tensions[i]) < tensionRank(rank, tensions[j])
		})
		out.Tensions = tensions[:f.caps.Tensions]
	}
	return &out
}

// tensionRank orders tensions by their topic's position in the priority
// list; unlisted topics sort last, keeping their relative order.
func tensionRank(rank map[string]int, t models.Tension) int {
	if r, ok := rank[t.Topic]; ok {
		return r
	}
	return len(rank) + 1
}

// CrossExam compacts a round-3 artifact for the verdict prompt. All
// unresolved items always survive; challenges and rebuttals keep their
// document order and are cut at the cap.
func (f *Filter) CrossExam(a *models.CrossExamArtifact) *models.CrossExamArtifact {
	if f.verbose || a == nil {
		return a
	}
	if len(a.Challenges) <= f.caps.Challenges && len(a.Rebuttals) <= f.caps.Rebuttals {
		return a
	}

	out := *a
	if len(a.Challenges) > f.caps.Challenges {
		out.Challenges = append([]models.Challenge(nil), a.Challenges[:f.caps.Challenges]...)
	}
	if len(a.Rebuttals) > f.caps.Rebuttals {
		out.Rebuttals = append([]models.Rebuttal(nil), a.Rebuttals[:f.caps.Rebuttals]...)
	}
	return &out
}

// Enabled reports whether filtering is active.
func (f *Filter) Enabled() bool {
	return !f.verbose
}
