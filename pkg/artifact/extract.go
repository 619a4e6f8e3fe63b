// Package artifact turns free-text model output into the typed round
// artifacts and compacts them for downstream rounds. Models are asked
// for JSON but routinely wrap it in prose or fences, misquote keys, or
// leave objects unclosed; extraction tolerates all of that and fails
// only when a required field is genuinely absent.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"

	"github.com/conclave-ai/conclave/pkg/models"
)

// ErrInvalidResponse marks model output that could not be shaped into a
// valid artifact. Callers match it with errors.Is.
var ErrInvalidResponse = errors.New("invalid model response")

// proseExcerptLimit bounds the stored excerpt of the raw response.
const proseExcerptLimit = 280

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractIndependent parses a round-1 response into an independent
// artifact. Position is required; everything else is coerced.
func ExtractIndependent(raw, agentID string) (*models.IndependentArtifact, error) {
	var art models.IndependentArtifact
	if err := decode(raw, &art); err != nil {
		return nil, fmt.Errorf("independent artifact for agent %s: %w", agentID, err)
	}
	if strings.TrimSpace(art.Position) == "" {
		return nil, fmt.Errorf("independent artifact for agent %s: %w: missing position", agentID, ErrInvalidResponse)
	}

	art.ArtifactType = models.ArtifactTypeIndependent
	art.AgentID = agentID
	art.KeyPoints = ensureSlice(art.KeyPoints)
	art.Confidence = clamp01(art.Confidence)
	if art.ProseExcerpt == "" {
		art.ProseExcerpt = excerpt(raw)
	}
	art.CreatedAt = time.Now().UTC()
	return &art, nil
}

// ExtractSynthesis parses the judge's round-2 response. At least one
// consensus point or tension is required.
func ExtractSynthesis(raw string) (*models.SynthesisArtifact, error) {
	var art models.SynthesisArtifact
	if err := decode(raw, &art); err != nil {
		return nil, fmt.Errorf("synthesis artifact: %w", err)
	}
	if len(art.ConsensusPoints) == 0 && len(art.Tensions) == 0 {
		return nil, fmt.Errorf("synthesis artifact: %w: no consensus points or tensions", ErrInvalidResponse)
	}

	art.ArtifactType = models.ArtifactTypeSynthesis
	art.RoundNumber = 2
	if art.ConsensusPoints == nil {
		art.ConsensusPoints = []models.ConsensusPoint{}
	}
	if art.Tensions == nil {
		art.Tensions = []models.Tension{}
	}
	for i := range art.ConsensusPoints {
		art.ConsensusPoints[i].Confidence = clamp01(art.ConsensusPoints[i].Confidence)
		art.ConsensusPoints[i].SupportingAgents = ensureSlice(art.ConsensusPoints[i].SupportingAgents)
	}
	art.PriorityOrder = ensureSlice(art.PriorityOrder)
	art.CreatedAt = time.Now().UTC()
	return &art, nil
}

// ExtractCrossExam parses the judge's round-3 consolidation. Challenges
// targeting agents outside validAgents are dropped rather than failing
// the round; pass nil to skip that check. At least one challenge or
// rebuttal must survive.
func ExtractCrossExam(raw string, validAgents []string) (*models.CrossExamArtifact, error) {
	var art models.CrossExamArtifact
	if err := decode(raw, &art); err != nil {
		return nil, fmt.Errorf("cross-exam artifact: %w", err)
	}

	if validAgents != nil {
		known := make(map[string]bool, len(validAgents))
		for _, id := range validAgents {
			known[id] = true
		}
		kept := art.Challenges[:0]
		for _, c := range art.Challenges {
			if known[c.TargetAgent] {
				kept = append(kept, c)
			}
		}
		art.Challenges = kept
	}
	if len(art.Challenges) == 0 && len(art.Rebuttals) == 0 {
		return nil, fmt.Errorf("cross-exam artifact: %w: no challenges or rebuttals", ErrInvalidResponse)
	}

	art.ArtifactType = models.ArtifactTypeCrossExam
	art.RoundNumber = 3
	if art.Challenges == nil {
		art.Challenges = []models.Challenge{}
	}
	if art.Rebuttals == nil {
		art.Rebuttals = []models.Rebuttal{}
	}
	for i := range art.Challenges {
		art.Challenges[i].Evidence = ensureSlice(art.Challenges[i].Evidence)
	}
	art.Unresolved = ensureSlice(art.Unresolved)
	art.CreatedAt = time.Now().UTC()
	return &art, nil
}

// ExtractVerdict parses the judge's round-4 response. Recommendation is
// required.
func ExtractVerdict(raw string) (*models.VerdictArtifact, error) {
	var art models.VerdictArtifact
	if err := decode(raw, &art); err != nil {
		return nil, fmt.Errorf("verdict artifact: %w", err)
	}
	if strings.TrimSpace(art.Recommendation) == "" {
		return nil, fmt.Errorf("verdict artifact: %w: missing recommendation", ErrInvalidResponse)
	}

	art.ArtifactType = models.ArtifactTypeVerdict
	art.RoundNumber = 4
	art.Confidence = clamp01(art.Confidence)
	art.Evidence = ensureSlice(art.Evidence)
	art.Dissent = ensureSlice(art.Dissent)
	art.CreatedAt = time.Now().UTC()
	return &art, nil
}

// decode isolates the JSON payload in raw and unmarshals it into out,
// trying progressively more lenient parsers.
func decode(raw string, out any) error {
	payload, ok := firstObject(stripFences(raw))
	if !ok {
		return fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}

	// Strict parse first; a well-behaved model costs one Unmarshal.
	if err := json.Unmarshal([]byte(payload), out); err == nil {
		return nil
	}
	// Repair handles unclosed objects, single quotes, trailing commas.
	if repaired, err := jsonrepair.RepairJSON(payload); err == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
	}
	// Hjson is the most lenient pass: unquoted keys, comments, bare
	// strings.
	if err := hjson.Unmarshal([]byte(payload), out); err == nil {
		return nil
	}
	return fmt.Errorf("%w: unparseable JSON payload", ErrInvalidResponse)
}

// stripFences removes a markdown code fence around the payload when one
// is present.
func stripFences(s string) string {
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// firstObject returns the first balanced {...} block, skipping any
// surrounding prose. Braces inside JSON strings do not count. An
// unterminated object returns the tail so the repair pass can close it.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func ensureSlice(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// excerpt condenses the raw response into a short single-line sample.
func excerpt(raw string) string {
	s := strings.Join(strings.Fields(stripFences(raw)), " ")
	runes := []rune(s)
	if len(runes) <= proseExcerptLimit {
		return s
	}
	return string(runes[:proseExcerptLimit])
}
