package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIClient(server *httptest.Server) *OpenAIClient {
	return NewOpenAIClient(OpenAIOptions{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-test",
	})
}

func TestOpenAIClient_Chat(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		var gotReq chatCompletionRequest
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"model": "gpt-test-0125",
				"choices": [{"message": {"content": "the answer"}}],
				"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
			}`))
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		resp, err := client.Chat(context.Background(), &ChatRequest{
			SystemPrompt: "be brief",
			Messages:     []Message{{Role: "user", Content: "question"}},
		})
		require.NoError(t, err)

		assert.Equal(t, "the answer", resp.Text)
		assert.Equal(t, "gpt-test-0125", resp.Model)
		assert.Equal(t, 12, resp.Usage.Input)
		assert.Equal(t, 7, resp.Usage.Output)
		assert.Equal(t, 19, resp.Usage.Total)

		assert.Equal(t, "Bearer test-key", gotAuth)
		require.Len(t, gotReq.Messages, 2)
		assert.Equal(t, "system", gotReq.Messages[0].Role)
		assert.Equal(t, "gpt-test", gotReq.Model)
		assert.False(t, gotReq.Stream)
	})

	t.Run("model override from request", func(t *testing.T) {
		var gotReq chatCompletionRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "pong"}}]}`))
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		resp, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "ping"}},
			Model:    "gpt-cheap",
		})
		require.NoError(t, err)
		assert.Equal(t, "gpt-cheap", gotReq.Model)
		// No model in the response body: fall back to the requested one.
		assert.Equal(t, "gpt-cheap", resp.Model)
	})

	t.Run("rate limited maps to retryable error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "quota"}}`))
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
		require.Error(t, err)

		assert.Equal(t, ErrorKindRateLimited, KindOf(err))
		assert.True(t, IsRetryable(err))
	})

	t.Run("auth failure is terminal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
		require.Error(t, err)

		assert.Equal(t, ErrorKindAuth, KindOf(err))
		assert.False(t, IsRetryable(err))
	})

	t.Run("empty choices is invalid response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
		require.Error(t, err)
		assert.Equal(t, ErrorKindInvalidResponse, KindOf(err))
	})

	t.Run("cancellation is honoured promptly", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			<-release
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "late"}}]}`))
		}))
		defer server.Close()
		defer close(release)

		client := newTestOpenAIClient(server)
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, err := client.Chat(ctx, &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.Equal(t, ErrorKindCancelled, KindOf(err))
		case <-time.After(100 * time.Millisecond):
			t.Fatal("cancelled call did not return within 100ms")
		}
	})
}

func TestOpenAIClient_HealthCheck(t *testing.T) {
	t.Run("healthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models", r.URL.Path)
			_, _ = w.Write([]byte(`{"data": []}`))
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		assert.NoError(t, client.HealthCheck(context.Background()))
	})

	t.Run("auth failure reported", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestOpenAIClient(server)
		err := client.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Equal(t, ErrorKindAuth, KindOf(err))
	})
}

func TestAnthropicClient_Chat(t *testing.T) {
	t.Run("successful message", func(t *testing.T) {
		var gotReq anthropicRequest
		var gotVersion, gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			gotVersion = r.Header.Get("anthropic-version")
			gotKey = r.Header.Get("x-api-key")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_, _ = w.Write([]byte(`{
				"model": "claude-test-1",
				"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "world"}],
				"usage": {"input_tokens": 5, "output_tokens": 3}
			}`))
		}))
		defer server.Close()

		client := NewAnthropicClient(AnthropicOptions{
			Name:    "claude",
			BaseURL: server.URL,
			APIKey:  "anthro-key",
			Model:   "claude-test",
		})
		resp, err := client.Chat(context.Background(), &ChatRequest{
			SystemPrompt: "be brief",
			Messages: []Message{
				{Role: "system", Content: "ignored duplicate"},
				{Role: "user", Content: "question"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "hello world", resp.Text)
		assert.Equal(t, "claude-test-1", resp.Model)
		assert.Equal(t, 8, resp.Usage.Total)

		assert.Equal(t, "anthro-key", gotKey)
		assert.Equal(t, anthropicVersion, gotVersion)
		assert.Equal(t, "be brief", gotReq.System)
		// System-role entries never land in messages.
		require.Len(t, gotReq.Messages, 1)
		assert.Equal(t, "user", gotReq.Messages[0].Role)
		assert.Positive(t, gotReq.MaxTokens)
	})

	t.Run("overloaded maps to transport", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewAnthropicClient(AnthropicOptions{Name: "claude", BaseURL: server.URL, Model: "m"})
		_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "q"}}})
		require.Error(t, err)
		assert.Equal(t, ErrorKindTransport, KindOf(err))
		assert.True(t, IsRetryable(err))
	})
}
