package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient speaks the Anthropic Messages API.
type AnthropicClient struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// AnthropicOptions configures an AnthropicClient.
type AnthropicOptions struct {
	Name      string
	BaseURL   string // "" = api.anthropic.com
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(opts AnthropicOptions) *AnthropicClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultOpenAITimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		name:       opts.Name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider id
func (c *AnthropicClient) Name() string { return c.name }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat implements Provider
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	// The Messages API takes system as a top-level field and rejects
	// system-role entries in messages.
	messages := make([]anthropicMessage, 0, len(req.Messages))
	system := req.SystemPrompt
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system == "" {
				system = m.Content
			}
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(c.name, ErrorKindTransport, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(ctx, c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(ctx, c.name, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.name, resp.StatusCode, string(respBody))
	}

	var message anthropicResponse
	if err := json.Unmarshal(respBody, &message); err != nil {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "decode response", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "no text content in response", ErrEmptyResponse)
	}

	respModel := message.Model
	if respModel == "" {
		respModel = model
	}
	usage := models.TokenUsage{
		Input:  message.Usage.InputTokens,
		Output: message.Usage.OutputTokens,
	}
	usage.Total = usage.Input + usage.Output
	return &ChatResponse{
		Text:  text.String(),
		Model: respModel,
		Usage: usage,
	}, nil
}
