// Package llm provides the provider client boundary used by the assistant.
//
// It defines the Provider interface that all LLM implementations must satisfy,
// along with message types and validated generation settings.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable indicates an unreachable backend or an open circuit.
	ErrProviderUnavailable = errors.New("llm provider unavailable")

	// ErrInvalidSettings indicates generation settings outside their allowed range.
	ErrInvalidSettings = errors.New("invalid generation settings")

	// ErrMissingAPIKey indicates a hosted provider configured without credentials.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrEmptyResponse indicates a backend reply without any generated text.
	ErrEmptyResponse = errors.New("llm generation failed: empty response")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider defines the interface for LLM providers.
//
// All LLM implementations (OpenAI, Ollama, DeepSeek, etc.) must implement this interface.
type Provider interface {
	// GenerateWithMessages generates text from a conversation history.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - messages: Conversation history (system, user, assistant messages)
	//   - settings: Validated generation parameters
	//
	// Returns the generated text and any error.
	GenerateWithMessages(ctx context.Context, messages []Message, settings Settings) (string, error)

	// Name returns the provider identifier, e.g. "openai" or "ollama".
	Name() string

	// Model returns the model the provider sends requests to.
	Model() string

	// Close closes the provider and releases resources.
	Close() error
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message role: "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message content text.
	Content string `json:"content"`
}

// Settings controls a single generation request.
type Settings struct {
	// Temperature controls randomness (0.0-2.0). Higher = more random.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultSettings returns Temperature=0.7 and MaxTokens=2000.
func DefaultSettings() Settings {
	return Settings{Temperature: 0.7, MaxTokens: 2000}
}

// Validate checks temperature ∈ [0, 2] and max_tokens > 0.
func (s Settings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidSettings, s.Temperature)
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidSettings, s.MaxTokens)
	}
	return nil
}

// Generate sends a single user prompt through p.
//
// Example:
//
//	text, err := llm.Generate(ctx, provider, "Hello", llm.DefaultSettings())
func Generate(ctx context.Context, p Provider, prompt string, settings Settings) (string, error) {
	return p.GenerateWithMessages(ctx, []Message{{Role: RoleUser, Content: prompt}}, settings)
}

// CopyMessages returns an independent copy of messages.
func CopyMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
