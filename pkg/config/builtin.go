package config

import (
	"sync"

	"github.com/conclave-ai/conclave/pkg/cost"
	"github.com/conclave-ai/conclave/pkg/models"
)

// BuiltinConfig holds all built-in configuration data.
// This provides a default provider set, deliberation panel, judge, and
// price table so conclave runs with nothing but API keys in the
// environment.
type BuiltinConfig struct {
	Providers       map[string]ProviderConfig
	Agents          []AgentConfig // default panel, in seat order
	Judge           JudgeConfig
	Prices          cost.PriceTable
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Providers:       initBuiltinProviders(),
		Agents:          initBuiltinAgents(),
		Judge:           JudgeConfig{Provider: "openai-gpt5"},
		Prices:          cost.DefaultPrices(),
		MaskingPatterns: initBuiltinMaskingPatterns(),
		PatternGroups:   initBuiltinPatternGroups(),
	}
}

func initBuiltinProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai-gpt5": {
			Kind:       ProviderKindOpenAI,
			Model:      "gpt-5",
			CheapModel: "gpt-4o-mini",
			Tier:       models.TierPremium,
			APIKeyEnv:  "OPENAI_API_KEY",
		},
		"anthropic-opus": {
			Kind:       ProviderKindAnthropic,
			Model:      "claude-opus-4",
			CheapModel: "claude-haiku-3-5",
			Tier:       models.TierPremium,
			APIKeyEnv:  "ANTHROPIC_API_KEY",
		},
		"anthropic-sonnet": {
			Kind:       ProviderKindAnthropic,
			Model:      "claude-sonnet-4",
			CheapModel: "claude-haiku-3-5",
			Tier:       models.TierStandard,
			APIKeyEnv:  "ANTHROPIC_API_KEY",
		},
		"gemini-pro": {
			Kind:       ProviderKindGemini,
			Model:      "gemini-2.5-pro",
			CheapModel: "gemini-2.5-flash",
			Tier:       models.TierStandard,
			APIKeyEnv:  "GEMINI_API_KEY",
		},
		"gemini-flash": {
			Kind:      ProviderKindGemini,
			Model:     "gemini-2.5-flash",
			Tier:      models.TierCheap,
			APIKeyEnv: "GEMINI_API_KEY",
		},
		"deepseek-chat": {
			Kind:      ProviderKindDeepSeek,
			Model:     "deepseek-chat",
			Tier:      models.TierCheap,
			APIKeyEnv: "DEEPSEEK_API_KEY",
		},
	}
}

func initBuiltinAgents() []AgentConfig {
	return []AgentConfig{
		{
			ID:          "architect",
			DisplayName: "Architect",
			Provider:    "anthropic-opus",
			Role: "You argue from long-term structure: coupling, failure modes, " +
				"operational blast radius. Prefer designs that stay simple under change.",
		},
		{
			ID:          "pragmatist",
			DisplayName: "Pragmatist",
			Provider:    "openai-gpt5",
			Role: "You argue from delivery cost: what ships this quarter, what the " +
				"team can actually operate, where complexity buys nothing.",
		},
		{
			ID:          "skeptic",
			DisplayName: "Skeptic",
			Provider:    "gemini-pro",
			Role: "You hunt hidden assumptions, unhandled edge cases, and risks the " +
				"other positions gloss over. Steelman the opposing view before attacking.",
		},
	}
}

// initBuiltinMaskingPatterns returns the built-in redaction patterns.
// They target the secrets most likely to surface in provider error
// strings: echoed API keys, bearer tokens, and credentials embedded in
// URLs or headers.
func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"api_key": {
			Pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{16,})["']?`,
			Replacement: `api_key=__MASKED_API_KEY__`,
			Description: "Generic api_key=... assignments",
		},
		"provider_key": {
			Pattern:     `\bsk-[A-Za-z0-9_\-]{8,}\b`,
			Replacement: `__MASKED_PROVIDER_KEY__`,
			Description: "OpenAI/Anthropic style sk- keys echoed in errors",
		},
		"google_key": {
			Pattern:     `\bAIza[A-Za-z0-9_\-]{16,}\b`,
			Replacement: `__MASKED_GOOGLE_KEY__`,
			Description: "Google API keys",
		},
		"bearer_token": {
			Pattern:     `(?i)\bbearer\s+[A-Za-z0-9._\-]{16,}`,
			Replacement: `Bearer __MASKED_TOKEN__`,
			Description: "Bearer tokens in echoed headers",
		},
		"authorization_header": {
			Pattern:     `(?i)\b(authorization|x-api-key|x-goog-api-key)["']?\s*[:=]\s*["']?([^"'\s]{8,})["']?`,
			Replacement: `$1: __MASKED_HEADER__`,
			Description: "Auth headers echoed by HTTP clients",
		},
		"url_credentials": {
			Pattern:     `://[^/\s:@]+:[^/\s@]+@`,
			Replacement: `://__MASKED_CREDENTIALS__@`,
			Description: "Credentials embedded in URLs",
		},
		"token": {
			Pattern:     `(?i)(?:token|secret)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `token=__MASKED_TOKEN__`,
			Description: "Generic token/secret assignments",
		},
		"slack_token": {
			Pattern:     `(?i)xox[baprs]-[A-Za-z0-9-]{10,72}`,
			Replacement: `__MASKED_SLACK_TOKEN__`,
			Description: "Slack tokens",
		},
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `__MASKED_EMAIL__`,
			Description: "Email addresses",
		},
	}
}

// initBuiltinPatternGroups returns predefined groups of masking
// patterns referenced from the system masking config.
func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		"basic":   {"provider_key", "api_key"},
		"secrets": {"provider_key", "google_key", "api_key", "bearer_token", "token", "url_credentials", "slack_token"},
		"all": {"provider_key", "google_key", "api_key", "bearer_token", "authorization_header",
			"url_credentials", "token", "slack_token", "email"},
	}
}
