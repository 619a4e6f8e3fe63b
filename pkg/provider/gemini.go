package provider

import (
	"context"

	"google.golang.org/genai"

	"github.com/conclave-ai/conclave/pkg/models"
)

// GeminiClient speaks to Google's Gemini models through the GenAI SDK.
type GeminiClient struct {
	name   string
	apiKey string
	model  string
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	Name   string
	APIKey string
	Model  string
}

// NewGeminiClient creates a Gemini provider client.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	return &GeminiClient{
		name:   opts.Name,
		apiKey: opts.APIKey,
		model:  opts.Model,
	}
}

// Name returns the provider id
func (c *GeminiClient) Name() string { return c.name }

// Chat implements Provider
func (c *GeminiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError(c.name, ErrorKindAuth, "create genai client", err)
	}

	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.SystemPrompt},
			},
		}
	}

	// Gemini uses "model" for assistant turns; system turns ride in the
	// system instruction, not the contents.
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, Classify(ctx, c.name, err)
	}

	text := result.Text()
	if text == "" {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "no text in response", ErrEmptyResponse)
	}

	var usage models.TokenUsage
	if result.UsageMetadata != nil {
		usage = models.TokenUsage{
			Input:  int(result.UsageMetadata.PromptTokenCount),
			Output: int(result.UsageMetadata.CandidatesTokenCount),
			Total:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return &ChatResponse{
		Text:  text,
		Model: model,
		Usage: usage,
	}, nil
}
