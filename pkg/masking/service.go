package masking

import (
	"log/slog"

	"github.com/conclave-ai/conclave/pkg/config"
)

// Service applies secret redaction to text that leaves the process:
// provider error strings and anything else headed for the database or
// a result payload. Created once at application startup. Thread-safe
// and stateless aside from compiled patterns.
type Service struct {
	enabled       bool
	patterns      map[string]*CompiledPattern // Built-in + custom compiled patterns
	patternGroups map[string][]string         // Group name -> pattern names
	customNames   []string                    // Custom pattern keys, in config order
	active        []*CompiledPattern          // Resolved set applied by Mask, in order
	codeMaskers   []Masker                    // Value-aware maskers, applied before regexes
}

// NewService creates a masking service with compiled patterns and
// registered maskers. All patterns are compiled eagerly at creation
// time. Invalid patterns are logged and skipped. A nil config disables
// masking entirely.
func NewService(cfg *config.MaskingConfig) *Service {
	s := &Service{
		patterns:      make(map[string]*CompiledPattern),
		patternGroups: config.GetBuiltinConfig().PatternGroups,
	}
	if cfg == nil || !cfg.Enabled {
		return s
	}
	s.enabled = true

	s.compileBuiltinPatterns()
	s.compileCustomPatterns(cfg.CustomPatterns)
	s.resolveActive(cfg)
	s.codeMaskers = append(s.codeMaskers, NewEnvSecretMasker())

	slog.Info("Masking service initialized",
		"builtin_patterns", len(config.GetBuiltinConfig().MaskingPatterns),
		"active_patterns", len(s.active),
		"code_maskers", len(s.codeMaskers))

	return s
}

// Enabled reports whether any masking will be applied.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// Mask redacts secrets from content. Value-aware maskers run first,
// then the resolved regex patterns in order. A nil or disabled service
// returns the content unchanged.
func (s *Service) Mask(content string) string {
	if !s.Enabled() || content == "" {
		return content
	}

	masked := content

	for _, masker := range s.codeMaskers {
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	for _, pattern := range s.active {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked
}
