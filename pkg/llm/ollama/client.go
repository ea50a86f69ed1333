package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nexus-ai/nexus-go/pkg/llm"
)

const (
	// DefaultHost is the local Ollama daemon address.
	DefaultHost = "http://localhost:11434"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "deepseek-coder:latest"
)

// Client is an Ollama LLM client.
// It implements the llm.Provider interface against a local or remote Ollama service.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
	logger  *slog.Logger
}

// Config is the configuration for Ollama LLM.
// APIKey: Ollama API key (optional, usually not required for local deployment)
// Model: Model name to use, defaults to "deepseek-coder:latest"
// BaseURL: Ollama service address, defaults to "http://localhost:11434"
// HTTPClient: Custom HTTP client, if nil uses default client (120 seconds timeout)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a new Ollama LLM client. It does not contact the daemon;
// call Connect to verify reachability and resolve the model.
func NewClient(cfg *Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultHost
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client := cfg.HTTPClient
	if client == nil {
		// Local models can be slow to answer.
		client = &http.Client{
			Timeout: 120 * time.Second,
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Connect checks that the daemon answers and that the configured model is
// installed. When it is missing and other models exist, the client switches
// to the first listed model and logs a warning. An unreachable daemon is
// reported as llm.ErrProviderUnavailable.
func (c *Client) Connect(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return err
	}

	for _, m := range models {
		if m == c.model {
			return nil
		}
	}

	c.logger.Warn("ollama model not found",
		slog.String("model", c.model),
		slog.Any("available", models),
	)
	if len(models) > 0 {
		c.model = models[0]
		c.logger.Info("using fallback ollama model", slog.String("model", c.model))
	}
	return nil
}

// ListModels returns the names of the installed models via GET /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot connect to ollama at %s: %v", llm.ErrProviderUnavailable, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama responded with status %d", llm.ErrProviderUnavailable, resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		names = append(names, name)
	}
	return names, nil
}

// GenerateWithMessages generates text using message history.
// Ollama calls max_tokens num_predict.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, settings llm.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: chatOptions{
			Temperature: settings.Temperature,
			NumPredict:  settings.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

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
		Message llm.Message `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if response.Message.Content == "" {
		return "", fmt.Errorf("%w: ollama returned no content", llm.ErrEmptyResponse)
	}

	return response.Message.Content, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "ollama" }

// Model implements llm.Provider. It reflects any fallback chosen by Connect.
func (c *Client) Model() string { return c.model }

// Close is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
