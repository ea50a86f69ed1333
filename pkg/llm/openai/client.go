package openai

import (
	"context"
	"fmt"

	"github.com/nexus-ai/nexus-go/pkg/llm"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-3.5-turbo"

// Client is an OpenAI LLM client.
// It implements the llm.Provider interface on top of the Chat Completions API.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for OpenAI LLM.
// APIKey: OpenAI API key (required)
// Model: Model name to use, defaults to "gpt-3.5-turbo"
// BaseURL: API base URL, defaults to OpenAI official address
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI LLM client.
//
// Args:
//   - cfg: OpenAI configuration containing APIKey, Model, and BaseURL
//
// Returns:
//   - *Client: OpenAI client instance
//   - error: llm.ErrMissingAPIKey when no key is configured
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", llm.ErrMissingAPIKey)
	}

	config := openai.DefaultConfig(cfg.APIKey)
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

// GenerateWithMessages generates text using message history.
//
// Args:
//   - ctx: Context for controlling the request lifecycle
//   - messages: Message history list, each message contains role and content
//   - settings: Temperature and max tokens for this request
//
// Returns:
//   - string: Generated text content
//   - error: Returns an error if generation fails
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, settings llm.Settings) (string, error) {
	return CreateChatCompletion(ctx, c.client, c.model, messages, settings)
}

// CreateChatCompletion sends messages to any OpenAI-compatible endpoint.
// It is shared with the DeepSeek client.
func CreateChatCompletion(ctx context.Context, client *openai.Client, model string, messages []llm.Message, settings llm.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		Temperature: float32(settings.Temperature),
		MaxTokens:   settings.MaxTokens,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", llm.ErrEmptyResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "openai" }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
