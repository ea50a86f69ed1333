package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nexus-ai/nexus-go/pkg/learning"
	"github.com/nexus-ai/nexus-go/pkg/llm"
	anthropicLLM "github.com/nexus-ai/nexus-go/pkg/llm/anthropic"
	deepseekLLM "github.com/nexus-ai/nexus-go/pkg/llm/deepseek"
	ollamaLLM "github.com/nexus-ai/nexus-go/pkg/llm/ollama"
	openaiLLM "github.com/nexus-ai/nexus-go/pkg/llm/openai"
	qwenLLM "github.com/nexus-ai/nexus-go/pkg/llm/qwen"
	"github.com/nexus-ai/nexus-go/pkg/storage"
	"github.com/nexus-ai/nexus-go/pkg/storage/oceanbase"
	postgresStore "github.com/nexus-ai/nexus-go/pkg/storage/postgres"
	sqliteStore "github.com/nexus-ai/nexus-go/pkg/storage/sqlite"
)

// ErrorReplyPrefix starts the reply shown when the provider call fails.
const ErrorReplyPrefix = "Sorry, I encountered an error: "

// Assistant ties conversation memory, the provider client and the learning
// layer into the ask/feedback/stats lifecycle.
//
// Each Ask sends the conversation with a one-turn enhanced system prompt.
// The enhancement lives only in the request copy; the stored system message
// never changes. A successful turn can then be rated with Feedback, which
// feeds it to the pattern learner.
//
// Calls are serialized: an Assistant is one conversation session.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	assistant, _ := core.NewAssistant(ctx, config)
//	defer assistant.Close()
//
//	reply, _ := assistant.Ask(ctx, "How do I reverse a list in Python?")
//	_, _ = assistant.Feedback(ctx, 1)
type Assistant struct {
	mu sync.Mutex

	config    *Config
	provider  llm.Provider
	breaker   *llm.Breaker
	store     storage.Store
	ownsStore bool

	learner *learning.PatternLearner
	adapter *learning.PromptAdapter
	memory  *ConversationMemory
	limiter *rate.Limiter

	settings     llm.Settings
	systemPrompt string
	sessionID    string
	lastTurn     *turn

	logger *slog.Logger
	clock  func() time.Time
}

// turn is the last successful exchange, waiting for feedback.
type turn struct {
	userInput    string
	response     string
	responseTime float64
}

// Reply is the outcome of Ask.
type Reply struct {
	// Content is the assistant text, or an apology when Failed is set.
	Content string `json:"content"`

	// Failed reports a provider failure. Failed turns are not kept in
	// memory and cannot be rated.
	Failed bool `json:"failed"`

	// ResponseTime is the provider latency in seconds.
	ResponseTime float64 `json:"response_time"`
}

// Status describes the running session.
type Status struct {
	SessionID    string `json:"session_id"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	MessageCount int    `json:"message_count"`
	MemorySize   int    `json:"memory_size"`
	CircuitState string `json:"circuit_state"`
	AwaitingRate bool   `json:"awaiting_feedback"`
}

// NewAssistant creates an assistant from cfg.
//
// The provider is built from cfg.LLM unless WithProvider is given; for ollama
// the daemon is checked and a missing model falls back to the first installed
// one. The learning store is opened from cfg.Store unless WithStore is given.
//
// Errors wrap ErrInvalidConfig for bad or missing settings (including a
// hosted provider without an API key) and ErrConnectionFailed when the
// provider or store cannot be reached.
func NewAssistant(ctx context.Context, cfg *Config, opts ...AssistantOption) (*Assistant, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := applyAssistantOptions(opts)
	logger := options.logger

	provider := options.provider
	if provider == nil {
		p, err := initLLM(ctx, cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	breakerCfg := llm.BreakerConfig{Logger: logger}
	if options.breaker != nil {
		breakerCfg = *options.breaker
		if breakerCfg.Logger == nil {
			breakerCfg.Logger = logger
		}
	}
	breaker := llm.NewBreaker(provider, breakerCfg)

	store := options.store
	ownsStore := false
	if store == nil {
		s, err := OpenStore(cfg.Store)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		store = s
		ownsStore = true
	}

	learnerCfg := &learning.Config{
		Deriver:        learning.DeriverByName(cfg.Learning.SuccessRate),
		RecordInsights: cfg.Learning.RecordInsights,
		Logger:         logger,
	}

	a := &Assistant{
		config:       cfg,
		provider:     breaker,
		breaker:      breaker,
		store:        store,
		ownsStore:    ownsStore,
		learner:      learning.NewPatternLearner(store, learnerCfg),
		adapter:      learning.NewPromptAdapter(store),
		memory:       NewConversationMemory(cfg.Assistant.MemorySize),
		limiter:      newLimiter(cfg.Assistant),
		settings:     cfg.LLM.Settings(),
		systemPrompt: cfg.SystemPrompt(),
		sessionID:    uuid.NewString(),
		logger:       logger,
		clock:        options.clock,
	}
	a.memory.now = options.clock
	a.memory.Add(llm.RoleSystem, a.systemPrompt)

	logger.Info("assistant initialized",
		slog.String("session", a.sessionID),
		slog.String("provider", provider.Name()),
		slog.String("model", provider.Model()),
	)
	return a, nil
}

// Ask sends question to the provider and returns the reply.
//
// Provider failures do not return an error: the reply carries an apology
// with Failed set, the conversation memory is left as it was before the
// call and nothing is learned. Errors are returned for empty input, invalid
// setting overrides and an exhausted rate limit.
func (a *Assistant) Ask(ctx context.Context, question string, opts ...AskOption) (*Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.TrimSpace(question) == "" {
		return nil, NewNexusError("Ask", fmt.Errorf("%w: empty question", ErrInvalidInput))
	}

	settings := applyAskOptions(a.settings, opts)
	if err := settings.Validate(); err != nil {
		return nil, wrapKind("Ask", ErrInvalidInput, err)
	}

	if a.limiter != nil && !a.limiter.Allow() {
		return nil, NewNexusError("Ask", ErrRateLimited)
	}

	a.logger.Info("processing question", slog.String("question", truncate(question, 100)))

	snapshot := a.memory.Messages()
	a.memory.Add(llm.RoleUser, question)
	a.pinSystemPrompt()

	messages := a.requestContext(ctx, question)

	start := a.clock()
	text, err := a.provider.GenerateWithMessages(ctx, messages, settings)
	elapsed := a.clock().Sub(start).Seconds()

	if err != nil {
		a.memory.restore(snapshot)
		a.lastTurn = nil
		a.logger.Error("error processing question", slog.String("error", err.Error()))
		return &Reply{
			Content:      ErrorReplyPrefix + err.Error(),
			Failed:       true,
			ResponseTime: elapsed,
		}, nil
	}

	a.memory.Add(llm.RoleAssistant, text)
	a.pinSystemPrompt()
	a.lastTurn = &turn{userInput: question, response: text, responseTime: elapsed}

	a.logger.Info("question processed", slog.Float64("response_time", elapsed))
	return &Reply{Content: text, ResponseTime: elapsed}, nil
}

// Chat is an alias for Ask.
func (a *Assistant) Chat(ctx context.Context, message string, opts ...AskOption) (*Reply, error) {
	return a.Ask(ctx, message, opts...)
}

// requestContext returns the memory context with the system message replaced
// by its enhanced form. The returned slice is a fresh copy; when the store
// cannot be read the base prompt is used.
func (a *Assistant) requestContext(ctx context.Context, userInput string) []llm.Message {
	messages := a.memory.Context()
	if len(messages) == 0 || messages[0].Role != llm.RoleSystem {
		return messages
	}

	enhanced, err := a.adapter.Enhance(ctx, userInput, messages[0].Content)
	if err != nil {
		a.logger.Warn("prompt enhancement failed, using base prompt", slog.String("error", err.Error()))
		return messages
	}
	messages[0].Content = enhanced
	return messages
}

// pinSystemPrompt puts the system message back at index 0 after truncation
// evicted it, keeping the newest messages that still fit.
func (a *Assistant) pinSystemPrompt() {
	msgs := a.memory.Messages()
	if len(msgs) > 0 && msgs[0].Role == llm.RoleSystem {
		return
	}

	keep := a.memory.MaxSize() - 1
	if len(msgs) > keep {
		msgs = msgs[len(msgs)-keep:]
	}

	a.memory.Clear()
	a.memory.Add(llm.RoleSystem, a.systemPrompt)
	for _, m := range msgs {
		a.memory.AddMessage(m)
	}
}

// Feedback rates the last successful turn (-1, 0 or 1) and learns from it.
// A turn can be rated once; a second call returns ErrNoTurn.
func (a *Assistant) Feedback(ctx context.Context, rating int) (*learning.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	feedback := storage.Feedback(rating)
	if !feedback.Valid() {
		return nil, NewNexusError("Feedback", fmt.Errorf("%w: %v", ErrInvalidInput, learning.ErrInvalidFeedback))
	}
	if a.lastTurn == nil {
		return nil, NewNexusError("Feedback", ErrNoTurn)
	}

	t := a.lastTurn
	result, err := a.learner.Learn(ctx, t.userInput, t.response, feedback,
		&learning.TurnContext{ResponseTime: t.responseTime})
	if err != nil {
		return nil, wrapKind("Feedback", ErrStorageOperation, err)
	}

	a.lastTurn = nil
	return result, nil
}

// Reset clears the conversation and restores the system message.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	a.logger.Info("conversation reset", slog.String("session", a.sessionID))
}

func (a *Assistant) reset() {
	a.memory.Clear()
	a.memory.Add(llm.RoleSystem, a.systemPrompt)
	a.lastTurn = nil
}

// SetSystemPrompt replaces the system prompt and resets the conversation.
func (a *Assistant) SetSystemPrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return NewNexusError("SetSystemPrompt", fmt.Errorf("%w: empty prompt", ErrInvalidInput))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = prompt
	a.reset()
	a.logger.Info("system prompt updated", slog.String("session", a.sessionID))
	return nil
}

// SystemPrompt returns the current base system prompt.
func (a *Assistant) SystemPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.systemPrompt
}

// History returns a copy of the conversation, system message included.
func (a *Assistant) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Messages()
}

// Status reports provider, model and memory usage.
func (a *Assistant) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		SessionID:    a.sessionID,
		Provider:     a.provider.Name(),
		Model:        a.provider.Model(),
		MessageCount: a.memory.Len(),
		MemorySize:   a.memory.MaxSize(),
		CircuitState: a.breaker.State(),
		AwaitingRate: a.lastTurn != nil,
	}
}

// SessionID returns the identifier assigned at construction.
func (a *Assistant) SessionID() string {
	return a.sessionID
}

// Statistics returns the aggregate learning statistics.
func (a *Assistant) Statistics(ctx context.Context) (*storage.Statistics, error) {
	stats, err := a.store.Statistics(ctx)
	if err != nil {
		return nil, wrapKind("Statistics", ErrStorageOperation, err)
	}
	return stats, nil
}

// Close releases the provider and, when the assistant opened it, the store.
func (a *Assistant) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.provider.Close()
	if a.ownsStore {
		err = errors.Join(err, a.store.Close())
	}
	return NewNexusError("Close", err)
}

func newLimiter(cfg AssistantConfig) *rate.Limiter {
	if cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return nil
	}
	every := cfg.RateWindow() / time.Duration(cfg.RateLimitRequests)
	return rate.NewLimiter(rate.Every(every), cfg.RateLimitRequests)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// OpenStore opens the learning store selected by cfg.Provider.
func OpenStore(cfg StoreConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Provider {
	case "sqlite":
		store, err = sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: cfg.SQLitePath,
			NodeID: cfg.NodeID,
		})
	case "postgres":
		store, err = postgresStore.NewClient(&postgresStore.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
			NodeID:   cfg.NodeID,
		})
	case "oceanbase":
		store, err = oceanbase.NewClient(&oceanbase.Config{
			Host:     cfg.OceanBase.Host,
			Port:     cfg.OceanBase.Port,
			User:     cfg.OceanBase.User,
			Password: cfg.OceanBase.Password,
			DBName:   cfg.OceanBase.DBName,
			NodeID:   cfg.NodeID,
		})
	default:
		return nil, NewNexusError("OpenStore", fmt.Errorf("%w: unsupported store provider %q", ErrInvalidConfig, cfg.Provider))
	}
	if err != nil {
		return nil, wrapKind("OpenStore", ErrConnectionFailed, err)
	}
	return store, nil
}

// initLLM builds the configured provider client.
func initLLM(ctx context.Context, cfg LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	var (
		provider llm.Provider
		err      error
	)

	switch cfg.Provider {
	case "openai":
		provider, err = openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "qwen":
		provider, err = qwenLLM.NewClient(&qwenLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "deepseek":
		provider, err = deepseekLLM.NewClient(&deepseekLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "anthropic":
		provider, err = anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		var client *ollamaLLM.Client
		client, err = ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Logger:  logger,
		})
		if err == nil {
			if cerr := client.Connect(ctx); cerr != nil {
				return nil, wrapKind("initLLM", ErrConnectionFailed, cerr)
			}
			provider = client
		}
	default:
		return nil, NewNexusError("initLLM", fmt.Errorf("%w: unsupported model provider %q", ErrInvalidConfig, cfg.Provider))
	}
	if err != nil {
		return nil, wrapKind("initLLM", ErrInvalidConfig, err)
	}
	return provider, nil
}
