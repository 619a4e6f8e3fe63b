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

const defaultOpenAITimeout = 120 * time.Second

// OpenAIClient speaks the OpenAI chat-completions wire format. It serves
// any compatible endpoint (OpenAI, DeepSeek, xAI, Groq) via BaseURL.
type OpenAIClient struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	Name      string // provider id, e.g. "openai", "deepseek"
	BaseURL   string // e.g. "https://api.openai.com/v1"
	APIKey    string
	Model     string
	MaxTokens int           // default when the request doesn't set one
	Timeout   time.Duration // 0 = defaultOpenAITimeout
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultOpenAITimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &OpenAIClient{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider id
func (c *OpenAIClient) Name() string { return c.name }

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string                  `json:"model"`
	Messages  []chatCompletionMessage `json:"messages"`
	MaxTokens int                     `json:"max_tokens,omitempty"`
	Stream    bool                    `json:"stream"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat implements Provider
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]chatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatCompletionMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    false,
	})
	if err != nil {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(c.name, ErrorKindTransport, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "decode response", err)
	}
	if len(completion.Choices) == 0 {
		return nil, NewError(c.name, ErrorKindInvalidResponse, "no choices in response", ErrEmptyResponse)
	}

	respModel := completion.Model
	if respModel == "" {
		respModel = model
	}
	return &ChatResponse{
		Text:  completion.Choices[0].Message.Content,
		Model: respModel,
		Usage: models.TokenUsage{
			Input:  completion.Usage.PromptTokens,
			Output: completion.Usage.CompletionTokens,
			Total:  completion.Usage.TotalTokens,
		},
	}, nil
}

// HealthCheck implements HealthChecker using the models listing endpoint,
// which costs no tokens.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return NewError(c.name, ErrorKindTransport, "create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Classify(ctx, c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(c.name, resp.StatusCode, string(body))
	}
	return nil
}
