package core

import (
	"log/slog"
	"time"

	"github.com/nexus-ai/nexus-go/pkg/llm"
	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// AssistantOption is a function type for configuring NewAssistant.
//
// Options are applied using the functional options pattern. Anything not
// supplied is built from the Config.
type AssistantOption func(*assistantOptions)

type assistantOptions struct {
	provider llm.Provider
	store    storage.Store
	logger   *slog.Logger
	clock    func() time.Time
	breaker  *llm.BreakerConfig
}

// WithProvider injects a ready provider instead of building one from Config.LLM.
//
// Example:
//
//	assistant, _ := core.NewAssistant(ctx, cfg, core.WithProvider(myProvider))
func WithProvider(p llm.Provider) AssistantOption {
	return func(opts *assistantOptions) {
		opts.provider = p
	}
}

// WithStore injects a learning store instead of opening one from Config.Store.
// The assistant does not close an injected store.
func WithStore(s storage.Store) AssistantOption {
	return func(opts *assistantOptions) {
		opts.store = s
	}
}

// WithLogger sets the structured logger (default: slog.Default()).
// A nil logger is ignored.
func WithLogger(l *slog.Logger) AssistantOption {
	return func(opts *assistantOptions) {
		if l != nil {
			opts.logger = l
		}
	}
}

// WithClock overrides time.Now for response-time measurement.
// A nil clock is ignored.
func WithClock(now func() time.Time) AssistantOption {
	return func(opts *assistantOptions) {
		if now != nil {
			opts.clock = now
		}
	}
}

// WithBreaker overrides the provider circuit breaker settings.
func WithBreaker(cfg llm.BreakerConfig) AssistantOption {
	return func(opts *assistantOptions) {
		opts.breaker = &cfg
	}
}

func applyAssistantOptions(opts []AssistantOption) *assistantOptions {
	options := &assistantOptions{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// AskOption is a function type for configuring a single Ask call.
type AskOption func(*AskOptions)

// AskOptions overrides the configured generation settings for one request.
// Overrides are validated like the configured values.
type AskOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// WithTemperature overrides the temperature for one request.
//
// Example:
//
//	reply, _ := assistant.Ask(ctx, "Write a haiku", core.WithTemperature(1.2))
func WithTemperature(t float64) AskOption {
	return func(opts *AskOptions) {
		opts.Temperature = &t
	}
}

// WithMaxTokens overrides max_tokens for one request.
func WithMaxTokens(n int) AskOption {
	return func(opts *AskOptions) {
		opts.MaxTokens = &n
	}
}

// applyAskOptions returns base with any overrides applied.
func applyAskOptions(base llm.Settings, opts []AskOption) llm.Settings {
	var options AskOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.Temperature != nil {
		base.Temperature = *options.Temperature
	}
	if options.MaxTokens != nil {
		base.MaxTokens = *options.MaxTokens
	}
	return base
}
