// Package provider contains the model provider port: the interface the
// engine speaks to remote LLM endpoints through, its error taxonomy, the
// provider registry, and the HTTP/SDK client implementations.
package provider

import (
	"context"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Message is one turn of a conversation sent to a provider.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a single non-streaming inference request.
type ChatRequest struct {
	Messages     []Message
	SystemPrompt string
	Model        string // overrides the client's configured model when set
	MaxTokens    int    // 0 = client default
}

// ChatResponse is the provider's answer plus token accounting.
type ChatResponse struct {
	Text  string
	Model string // the model that actually answered
	Usage models.TokenUsage
}

// Provider speaks to a single remote model endpoint. Implementations do
// network I/O only and hold no hidden state. Chat must honour context
// cancellation promptly (within 100ms); cancelled calls fail with a
// ProviderError of kind Cancelled.
type Provider interface {
	// Name returns the stable provider id this client serves.
	Name() string

	// Chat sends one conversation and returns the completed response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// HealthChecker is an optional capability. When a Provider implements it,
// the health monitor prefers it over a synthetic ping chat.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
