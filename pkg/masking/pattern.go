package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/conclave-ai/conclave/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// compileBuiltinPatterns compiles all built-in regex patterns.
// Invalid patterns are logged and skipped.
func (s *Service) compileBuiltinPatterns() {
	for name, pattern := range config.GetBuiltinConfig().MaskingPatterns {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
}

// compileCustomPatterns compiles user-defined patterns from the masking
// config. Custom patterns are keyed as "custom:{index}" to avoid
// collisions with built-in names.
func (s *Service) compileCustomPatterns(custom []config.MaskingPattern) {
	for i, pattern := range custom {
		name := fmt.Sprintf("custom:%d", i)
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("Failed to compile custom masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
		s.customNames = append(s.customNames, name)
	}
}

// resolveActive expands the configured pattern groups and individual
// pattern names into the ordered, deduplicated set applied by Mask.
// Custom patterns always run last so they can clean up anything the
// built-ins reshaped.
func (s *Service) resolveActive(cfg *config.MaskingConfig) {
	seen := make(map[string]bool)

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if cp, ok := s.patterns[name]; ok {
			s.active = append(s.active, cp)
		}
	}

	for _, groupName := range cfg.PatternGroups {
		groupPatterns, ok := s.patternGroups[groupName]
		if !ok {
			slog.Warn("Unknown masking pattern group, skipping", "group", groupName)
			continue
		}
		for _, name := range groupPatterns {
			add(name)
		}
	}

	for _, name := range cfg.Patterns {
		add(name)
	}

	for _, name := range s.customNames {
		add(name)
	}
}
