package provider

import (
	"fmt"

	"github.com/conclave-ai/conclave/pkg/config"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// BuildRegistry constructs one live client per configured provider and
// returns them as a registry ready for the engine and health monitor.
func BuildRegistry(cfg *config.Config) (*Registry, error) {
	entries := make(map[string]*Entry)

	for id, pc := range cfg.ProviderRegistry.GetAll() {
		client, err := buildClient(id, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", id, err)
		}
		entries[id] = &Entry{
			Provider:   client,
			Tier:       pc.Tier,
			CheapModel: pc.CheapModel,
		}
	}

	return NewRegistry(entries), nil
}

func buildClient(id string, pc *config.ProviderConfig) (Provider, error) {
	apiKey := pc.ResolveAPIKey()

	switch pc.Kind {
	case config.ProviderKindOpenAI:
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		return NewOpenAIClient(OpenAIOptions{
			Name:    id,
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   pc.Model,
			Timeout: pc.Timeout(),
		}), nil

	case config.ProviderKindDeepSeek:
		// DeepSeek speaks the OpenAI wire format on its own endpoint
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = defaultDeepSeekBaseURL
		}
		return NewOpenAIClient(OpenAIOptions{
			Name:    id,
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   pc.Model,
			Timeout: pc.Timeout(),
		}), nil

	case config.ProviderKindAnthropic:
		return NewAnthropicClient(AnthropicOptions{
			Name:    id,
			BaseURL: pc.BaseURL,
			APIKey:  apiKey,
			Model:   pc.Model,
			Timeout: pc.Timeout(),
		}), nil

	case config.ProviderKindGemini:
		return NewGeminiClient(GeminiOptions{
			Name:   id,
			APIKey: apiKey,
			Model:  pc.Model,
		}), nil

	default:
		return nil, fmt.Errorf("%w: unsupported provider kind %q", config.ErrInvalidValue, pc.Kind)
	}
}
