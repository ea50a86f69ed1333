package anthropic

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
	DefaultModel = "claude-3-5-sonnet-20240620"

	// DefaultBaseURL is the hosted Messages API.
	DefaultBaseURL = "https://api.anthropic.com"

	apiVersion = "2023-06-01"
)

// Client is an Anthropic LLM client.
// System messages are sent in the top-level "system" field, as the Messages API requires.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config is the configuration for Anthropic LLM.
// APIKey: Anthropic API key (required)
// Model: Model name to use, defaults to "claude-3-5-sonnet-20240620"
// BaseURL: API base URL, defaults to "https://api.anthropic.com"
// HTTPClient: Custom HTTP client, if nil uses default client (120 seconds timeout)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Anthropic LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrMissingAPIKey)
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
			Timeout: 120 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// GenerateWithMessages implements llm.Provider.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, settings llm.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	var system string
	filtered := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = msg.Content
			continue
		}
		filtered = append(filtered, msg)
	}

	reqBody := messagesRequest{
		Model:       c.model,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		System:      system,
		Messages:    filtered,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

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
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	for _, block := range response.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no content returned from Anthropic API", llm.ErrEmptyResponse)
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []llm.Message `json:"messages"`
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "anthropic" }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Close is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
