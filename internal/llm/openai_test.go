package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOpenAIClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, nil)
}

func TestOpenAIClient_Generate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		// Temperature is pinned to 0 and must be present on the wire.
		temp, ok := req["temperature"]
		require.True(t, ok, "temperature must be serialized")
		assert.Equal(t, 0.0, temp)

		messages := req["messages"].([]interface{})
		require.Len(t, messages, 1)
		msg := messages[0].(map[string]interface{})
		assert.Equal(t, "user", msg["role"])
		assert.Equal(t, "What is the capital of France?", msg["content"])

		_ = json.NewEncoder(w).Encode(chatResponse{
			ID: "chatcmpl-1",
			Choices: []chatChoice{
				{Message: chatMessage{Role: "assistant", Content: "Paris."}, FinishReason: "stop"},
			},
		})
	})

	answer, err := c.Generate(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
}

func TestOpenAIClient_GenerateRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"rate_limit_exceeded"}}`, http.StatusTooManyRequests)
	})

	_, err := c.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAIClient_GenerateServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "status 502")
}

func TestOpenAIClient_GenerateAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Error: &apiError{Type: "invalid_request_error", Message: "bad model"},
		})
	})

	_, err := c.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request_error")
}

func TestOpenAIClient_GenerateEmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{ID: "chatcmpl-2"})
	})

	answer, err := c.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "", answer)
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	c := NewOpenAIClient(ClientConfig{APIKey: "k"}, nil)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
