// Package cost estimates consultation spend before any provider call is
// made and gates execution on a configurable USD threshold.
package cost

import "strings"

// ModelPrice is the per-million-token price for one model.
type ModelPrice struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`   // USD per 1M input tokens
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"` // USD per 1M output tokens
}

// PriceTable maps model names to prices. Lookup falls back to a prefix
// match (versioned model names like "gpt-5-2025-08-07" resolve to their
// base entry) and finally to a conservative default so an unknown model
// never estimates as free.
type PriceTable map[string]ModelPrice

// fallbackPrice is deliberately on the expensive side. Overestimating an
// unknown model trips the gate; underestimating bypasses it.
var fallbackPrice = ModelPrice{InputPerMTok: 15.0, OutputPerMTok: 75.0}

// DefaultPrices returns the built-in table. Config can override or extend
// individual entries.
func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-5":             {InputPerMTok: 1.25, OutputPerMTok: 10.0},
		"gpt-5-mini":        {InputPerMTok: 0.25, OutputPerMTok: 2.0},
		"gpt-4o":            {InputPerMTok: 2.5, OutputPerMTok: 10.0},
		"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.6},
		"claude-opus-4":     {InputPerMTok: 15.0, OutputPerMTok: 75.0},
		"claude-sonnet-4":   {InputPerMTok: 3.0, OutputPerMTok: 15.0},
		"claude-haiku-3-5":  {InputPerMTok: 0.8, OutputPerMTok: 4.0},
		"gemini-2.5-pro":    {InputPerMTok: 1.25, OutputPerMTok: 10.0},
		"gemini-2.5-flash":  {InputPerMTok: 0.3, OutputPerMTok: 2.5},
		"deepseek-chat":     {InputPerMTok: 0.27, OutputPerMTok: 1.1},
		"deepseek-reasoner": {InputPerMTok: 0.55, OutputPerMTok: 2.19},
	}
}

// Merge overlays other onto t, returning a new table. Entries in other
// win.
func (t PriceTable) Merge(other PriceTable) PriceTable {
	merged := make(PriceTable, len(t)+len(other))
	for name, price := range t {
		merged[name] = price
	}
	for name, price := range other {
		merged[name] = price
	}
	return merged
}

// Lookup resolves the price for a model name.
func (t PriceTable) Lookup(model string) ModelPrice {
	if price, ok := t[model]; ok {
		return price
	}
	// Versioned names resolve to their longest table prefix.
	var bestName string
	var best ModelPrice
	for name, price := range t {
		if strings.HasPrefix(model, name) && len(name) > len(bestName) {
			bestName = name
			best = price
		}
	}
	if bestName != "" {
		return best
	}
	return fallbackPrice
}
