package config

// ProviderKind selects the client implementation used to reach a
// provider endpoint
type ProviderKind string

const (
	// ProviderKindOpenAI is the OpenAI chat-completions API
	ProviderKindOpenAI ProviderKind = "openai"
	// ProviderKindAnthropic is the Anthropic messages API
	ProviderKindAnthropic ProviderKind = "anthropic"
	// ProviderKindGemini is the Google Gemini API via the genai SDK
	ProviderKindGemini ProviderKind = "gemini"
	// ProviderKindDeepSeek is the DeepSeek API (OpenAI wire format)
	ProviderKindDeepSeek ProviderKind = "deepseek"
)

// IsValid checks if the provider kind is valid
func (k ProviderKind) IsValid() bool {
	switch k {
	case ProviderKindOpenAI,
		ProviderKindAnthropic,
		ProviderKindGemini,
		ProviderKindDeepSeek:
		return true
	default:
		return false
	}
}
