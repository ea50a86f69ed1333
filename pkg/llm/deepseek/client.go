package deepseek

import (
	"context"
	"fmt"

	"github.com/nexus-ai/nexus-go/pkg/llm"
	llmopenai "github.com/nexus-ai/nexus-go/pkg/llm/openai"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "deepseek-chat"

	// DefaultBaseURL is the hosted DeepSeek API.
	DefaultBaseURL = "https://api.deepseek.com"
)

// Client is a DeepSeek LLM client.
// DeepSeek uses the OpenAI-compatible API format, so it reuses the OpenAI SDK.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for DeepSeek LLM.
// APIKey: DeepSeek API key (required)
// Model: Model name to use, defaults to "deepseek-chat"
// BaseURL: API base URL, defaults to "https://api.deepseek.com"
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new DeepSeek LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek: %w", llm.ErrMissingAPIKey)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// GenerateWithMessages implements llm.Provider.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, settings llm.Settings) (string, error) {
	return llmopenai.CreateChatCompletion(ctx, c.client, c.model, messages, settings)
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "deepseek" }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Close is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
