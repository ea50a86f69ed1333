// Package qwen provides a Qwen LLM implementation using the Alibaba Cloud DashScope API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexus-ai/nexus-go/pkg/llm"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "qwen-plus"

	// DefaultBaseURL is the DashScope API root.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
)

// Client implements llm.Provider using the DashScope text-generation endpoint.
type Client struct {
	// client is the HTTP client for API requests.
	client *http.Client

	// apiKey is the DashScope API key.
	apiKey string

	// model is the Qwen model name to use.
	model string

	// baseURL is the base URL for DashScope API.
	baseURL string
}

// Config contains configuration for creating a Qwen LLM client.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the model name to use (default: "qwen-plus").
	Model string

	// BaseURL is the API base URL (default: DashScope official address).
	BaseURL string

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new Qwen LLM client.
//
// Parameters:
//   - cfg: Qwen configuration containing APIKey, Model, BaseURL, etc.
//
// Returns:
//   - *Client: Qwen client instance
//   - error: llm.ErrMissingAPIKey when no key is configured
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("qwen: %w", llm.ErrMissingAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// GenerateWithMessages generates text from a conversation history.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - messages: Message history list, each message contains role and content
//   - settings: Temperature and max tokens for this request
//
// Returns:
//   - string: Generated text content
//   - error: Error if generation fails
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, settings llm.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	reqBody := generationRequest{Model: c.model}
	reqBody.Input.Messages = messages
	reqBody.Parameters.Temperature = settings.Temperature
	reqBody.Parameters.MaxTokens = settings.MaxTokens
	reqBody.Parameters.ResultFormat = "message"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/services/aigc/text-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %v", llm.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Output struct {
			Choices []struct {
				Message llm.Message `json:"message"`
			} `json:"choices"`
		} `json:"output"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(response.Output.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned from Qwen API", llm.ErrEmptyResponse)
	}

	return response.Output.Choices[0].Message.Content, nil
}

type generationRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []llm.Message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Temperature  float64 `json:"temperature"`
		MaxTokens    int     `json:"max_tokens"`
		ResultFormat string  `json:"result_format"`
	} `json:"parameters"`
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "qwen" }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Close closes the client connection.
//
// HTTP clients do not need explicit closing, this method is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
