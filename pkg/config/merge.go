package config

import (
	"github.com/conclave-ai/conclave/pkg/cost"
)

// mergeProviders merges built-in and user-defined provider configurations.
// User-defined providers override built-in providers with the same id.
func mergeProviders(builtinProviders map[string]ProviderConfig, userProviders map[string]ProviderConfig) map[string]*ProviderConfig {
	result := make(map[string]*ProviderConfig)

	// First, add built-in providers
	for id, provider := range builtinProviders {
		providerCopy := provider
		result[id] = &providerCopy
	}

	// Then, override with user-defined providers (or add new ones)
	for id, userProvider := range userProviders {
		providerCopy := userProvider
		result[id] = &providerCopy
	}

	return result
}

// mergeAgents resolves the deliberation panel. A panel is a seat list,
// not a keyed set: when the user defines any agents, their list replaces
// the built-in panel wholesale. Empty display names default to the id.
func mergeAgents(builtinAgents []AgentConfig, userAgents []AgentConfig) []*AgentConfig {
	source := builtinAgents
	if len(userAgents) > 0 {
		source = userAgents
	}

	result := make([]*AgentConfig, 0, len(source))
	for _, agent := range source {
		agentCopy := agent
		if agentCopy.DisplayName == "" {
			agentCopy.DisplayName = agentCopy.ID
		}
		result = append(result, &agentCopy)
	}

	return result
}

// mergeJudge resolves the judge selection. User settings override
// built-in per field so a bare model override keeps the default provider.
func mergeJudge(builtinJudge JudgeConfig, userJudge *JudgeConfig) *JudgeConfig {
	judge := builtinJudge
	if userJudge != nil {
		if userJudge.Provider != "" {
			judge.Provider = userJudge.Provider
		}
		if userJudge.Model != "" {
			judge.Model = userJudge.Model
		}
	}
	return &judge
}

// mergePrices overlays user price entries onto the built-in table.
// User-defined prices override built-in prices with the same model name.
func mergePrices(builtinPrices cost.PriceTable, userPrices cost.PriceTable) cost.PriceTable {
	return builtinPrices.Merge(userPrices)
}
