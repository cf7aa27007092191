// Package llm wraps the generative backend behind a single Generate
// call. The OpenAI client speaks the chat-completions REST API over raw
// net/http; the Backend adapter layers circuit-breaker admission on top
// and translates the backend's failure taxonomy into the two sentinel
// errors the pipeline understands.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/developer-mesh/semcache/pkg/observability"
)

const (
	// DefaultBaseURL is the OpenAI chat-completions endpoint
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the generation model used when none is configured
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds a single generation round-trip
	DefaultTimeout = 60 * time.Second
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`

	// Temperature is pinned to 0 so repeated generations are
	// deterministic; it must serialize even at the zero value.
	Temperature float32 `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientConfig configures the OpenAI client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1"
	BaseURL string

	// APIKey is the bearer token
	APIKey string

	// Model is the generation model identifier
	Model string

	// Timeout bounds each HTTP request
	Timeout time.Duration
}

// OpenAIClient calls the chat-completions API directly. It is safe for
// concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     observability.Logger
}

// NewOpenAIClient creates a client from explicit configuration.
func NewOpenAIClient(cfg ClientConfig, logger observability.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	return &OpenAIClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     logger.WithPrefix("llm"),
	}
}

// Generate produces an answer for query. A rate-limited call returns
// ErrRateLimited; any other API failure returns a plain error for the
// Backend adapter to classify. An empty completion is returned as the
// empty string, not an error.
func (c *OpenAIClient) Generate(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: query}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("API error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	// An empty completion is a valid (if useless) answer.
	if len(apiResp.Choices) == 0 {
		c.logger.Warn("Backend returned no choices", map[string]interface{}{
			"model": c.model,
		})
		return "", nil
	}

	return apiResp.Choices[0].Message.Content, nil
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string {
	return c.model
}
