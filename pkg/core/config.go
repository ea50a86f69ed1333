package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nexus-ai/nexus-go/pkg/llm"
	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// DefaultSystemPrompt is the system message a new conversation starts with.
const DefaultSystemPrompt = `You are Nexus, an intelligent AI assistant designed to help users with various tasks.
You are helpful, accurate, and provide clear explanations.
You can assist with:
- Answering questions and providing information
- Helping with coding and technical problems
- Automating tasks and workflows
- Providing creative solutions

Always be polite, professional, and helpful in your responses.`

// Config contains the complete configuration for a Nexus assistant.
//
// Example:
//
//	config := core.DefaultConfig()
//	config.LLM.Provider = "openai"
//	config.LLM.APIKey = "sk-..."
//	assistant, err := core.NewAssistant(config)
type Config struct {
	// LLM contains provider client configuration.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Store contains learning store configuration.
	Store StoreConfig `json:"store" yaml:"store"`

	// Assistant contains conversation settings.
	Assistant AssistantConfig `json:"assistant" yaml:"assistant"`

	// Learning contains pattern learning settings.
	Learning LearningConfig `json:"learning" yaml:"learning"`

	// Server contains HTTP API settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: ollama, openai, deepseek, anthropic, qwen
type LLMConfig struct {
	// Provider is the LLM provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for hosted providers (unused by ollama).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name to use (provider default if empty).
	Model string `json:"model" yaml:"model"`

	// BaseURL is the API base URL; for ollama, the daemon host.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Temperature and MaxTokens are sent with every request.
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Settings returns the generation settings for provider calls.
func (c LLMConfig) Settings() llm.Settings {
	return llm.Settings{Temperature: c.Temperature, MaxTokens: c.MaxTokens}
}

// StoreConfig contains configuration for the learning store.
//
// Supported providers: sqlite, postgres, oceanbase
type StoreConfig struct {
	// Provider is the store provider name.
	Provider string `json:"provider" yaml:"provider"`

	// SQLitePath is the database file for the sqlite provider.
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	// Postgres is used by the postgres provider.
	Postgres DatabaseConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`

	// OceanBase is used by the oceanbase provider.
	OceanBase DatabaseConfig `json:"oceanbase,omitempty" yaml:"oceanbase,omitempty"`

	// NodeID is the snowflake node used for record IDs.
	NodeID int64 `json:"node_id,omitempty" yaml:"node_id,omitempty"`
}

// DatabaseConfig holds network database connection settings.
type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
}

// AssistantConfig contains conversation settings.
type AssistantConfig struct {
	// MemorySize is the maximum number of messages kept in context.
	MemorySize int `json:"memory_size" yaml:"memory_size"`

	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// RateLimitRequests requests are allowed per RateLimitWindow seconds.
	// Zero disables rate limiting.
	RateLimitRequests int `json:"rate_limit_requests" yaml:"rate_limit_requests"`
	RateLimitWindow   int `json:"rate_limit_window" yaml:"rate_limit_window"`
}

// RateWindow returns RateLimitWindow as a duration.
func (c AssistantConfig) RateWindow() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}

// LearningConfig contains pattern learning settings.
type LearningConfig struct {
	// SuccessRate selects the success-rate derivation: "observed" or "feedback".
	SuccessRate string `json:"success_rate" yaml:"success_rate"`

	// RecordInsights persists improvement suggestions to learning_insights.
	RecordInsights bool `json:"record_insights" yaml:"record_insights"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// SessionTTL is the idle time in minutes after which a session is closed.
	SessionTTL  int `json:"session_ttl" yaml:"session_ttl"`
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultConfig returns the documented defaults: a local ollama provider and
// a SQLite store at nexus_learning.db.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "deepseek-coder:latest",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Store: StoreConfig{
			Provider:   "sqlite",
			SQLitePath: storage.DefaultDBPath,
			NodeID:     1,
		},
		Assistant: AssistantConfig{
			MemorySize:        10,
			RateLimitRequests: 100,
			RateLimitWindow:   60,
		},
		Learning: LearningConfig{
			SuccessRate: "observed",
		},
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8000,
			SessionTTL:  30,
			MaxSessions: 100,
		},
		LogLevel: "info",
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file (existing variables win)
//  3. Overlays the environment onto DefaultConfig
//
// Supported environment variables:
//   - MODEL_PROVIDER (ollama, openai, deepseek, anthropic, qwen)
//   - OPENAI_API_KEY, OPENAI_MODEL
//   - OLLAMA_HOST, OLLAMA_MODEL
//   - LLM_API_KEY, LLM_MODEL, LLM_BASE_URL (other providers)
//   - MAX_TOKENS, TEMPERATURE, CONVERSATION_MEMORY_SIZE, LOG_LEVEL
//   - DATABASE_PROVIDER, LEARNING_DB_PATH, POSTGRES_*, OCEANBASE_*
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, WEB_HOST, WEB_PORT
//   - WEB_SESSION_TTL (minutes), WEB_MAX_SESSIONS
//   - LEARNING_SUCCESS_RATE, LEARNING_RECORD_INSIGHTS
//
// Malformed numbers are reported as ErrInvalidConfig.
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	var p envParser

	cfg.LLM.Provider = strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", cfg.LLM.Provider))
	switch cfg.LLM.Provider {
	case "ollama":
		cfg.LLM.BaseURL = getEnvOrDefault("OLLAMA_HOST", cfg.LLM.BaseURL)
		cfg.LLM.Model = getEnvOrDefault("OLLAMA_MODEL", cfg.LLM.Model)
	case "openai":
		cfg.LLM.APIKey = getEnvOrDefault("OPENAI_API_KEY", os.Getenv("LLM_API_KEY"))
		cfg.LLM.Model = getEnvOrDefault("OPENAI_MODEL", getEnvOrDefault("LLM_MODEL", "gpt-3.5-turbo"))
		cfg.LLM.BaseURL = os.Getenv("LLM_BASE_URL")
	default:
		cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
		cfg.LLM.Model = os.Getenv("LLM_MODEL")
		cfg.LLM.BaseURL = os.Getenv("LLM_BASE_URL")
	}
	cfg.LLM.MaxTokens = p.getInt("MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Temperature = p.getFloat("TEMPERATURE", cfg.LLM.Temperature)

	cfg.Store.Provider = strings.ToLower(getEnvOrDefault("DATABASE_PROVIDER", cfg.Store.Provider))
	cfg.Store.SQLitePath = getEnvOrDefault("LEARNING_DB_PATH", cfg.Store.SQLitePath)
	cfg.Store.NodeID = int64(p.getInt("SNOWFLAKE_NODE_ID", int(cfg.Store.NodeID)))
	cfg.Store.Postgres = DatabaseConfig{
		Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:     p.getInt("POSTGRES_PORT", 5432),
		User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   getEnvOrDefault("POSTGRES_DATABASE", "nexus"),
		SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}
	cfg.Store.OceanBase = DatabaseConfig{
		Host:     getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
		Port:     p.getInt("OCEANBASE_PORT", 2881),
		User:     getEnvOrDefault("OCEANBASE_USER", "root@sys"),
		Password: os.Getenv("OCEANBASE_PASSWORD"),
		DBName:   getEnvOrDefault("OCEANBASE_DATABASE", "nexus"),
	}

	cfg.Assistant.MemorySize = p.getInt("CONVERSATION_MEMORY_SIZE", cfg.Assistant.MemorySize)
	cfg.Assistant.SystemPrompt = os.Getenv("SYSTEM_PROMPT")
	cfg.Assistant.RateLimitRequests = p.getInt("RATE_LIMIT_REQUESTS", cfg.Assistant.RateLimitRequests)
	cfg.Assistant.RateLimitWindow = p.getInt("RATE_LIMIT_WINDOW", cfg.Assistant.RateLimitWindow)

	cfg.Learning.SuccessRate = getEnvOrDefault("LEARNING_SUCCESS_RATE", cfg.Learning.SuccessRate)
	cfg.Learning.RecordInsights = p.getBool("LEARNING_RECORD_INSIGHTS", cfg.Learning.RecordInsights)

	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = p.getInt("WEB_PORT", cfg.Server.Port)
	cfg.Server.SessionTTL = p.getInt("WEB_SESSION_TTL", cfg.Server.SessionTTL)
	cfg.Server.MaxSessions = p.getInt("WEB_MAX_SESSIONS", cfg.Server.MaxSessions)

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	if p.err != nil {
		return nil, NewNexusError("LoadConfigFromEnv", p.err)
	}
	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewNexusError("LoadConfigFromEnvFile", fmt.Errorf("failed to load .env file: %w", err))
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
// Fields missing from the file keep their DefaultConfig values.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewNexusError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewNexusError("LoadConfigFromJSON", err)
	}

	return config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
// Fields missing from the file keep their DefaultConfig values.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewNexusError("LoadConfigFromYAML", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewNexusError("LoadConfigFromYAML", err)
	}

	return config, nil
}

// LoadConfigFromFile dispatches on the file extension: .json, .yaml/.yml or .env.
func LoadConfigFromFile(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadConfigFromJSON(path)
	case ".yaml", ".yml":
		return LoadConfigFromYAML(path)
	default:
		return LoadConfigFromEnvFile(path)
	}
}

// Validate validates the configuration.
//
// Checks that:
//   - an LLM provider and a store provider are specified
//   - the conversation memory holds at least the system message and one turn
//   - temperature ∈ [0, 2] and max_tokens > 0
//
// Returns an error wrapping ErrInvalidConfig if validation fails.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return NewNexusError("Validate", fmt.Errorf("%w: llm provider is required", ErrInvalidConfig))
	}
	if c.Store.Provider == "" {
		return NewNexusError("Validate", fmt.Errorf("%w: store provider is required", ErrInvalidConfig))
	}
	if c.Assistant.MemorySize < 2 {
		return NewNexusError("Validate", fmt.Errorf("%w: memory size must be at least 2, got %d", ErrInvalidConfig, c.Assistant.MemorySize))
	}
	if c.Assistant.RateLimitRequests < 0 || c.Assistant.RateLimitWindow < 0 {
		return NewNexusError("Validate", fmt.Errorf("%w: rate limits must not be negative", ErrInvalidConfig))
	}
	if err := c.LLM.Settings().Validate(); err != nil {
		return NewNexusError("Validate", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	return nil
}

// SystemPrompt returns the configured system prompt or DefaultSystemPrompt.
func (c *Config) SystemPrompt() string {
	if c.Assistant.SystemPrompt != "" {
		return c.Assistant.SystemPrompt
	}
	return DefaultSystemPrompt
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser reads typed variables and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw)
		return def
	}
	return v
}

func (p *envParser) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, raw)
		return def
	}
	return v
}

func (p *envParser) getBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw)
		return def
	}
	return v
}

func (p *envParser) fail(key, raw string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
