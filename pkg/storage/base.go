// Package storage provides interfaces and types for the persistent learning store.
//
// It defines the Store interface that all backend implementations must satisfy,
// along with the conversation, pattern and insight record types that the
// learning layer reads and writes.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultDBPath is the default SQLite file used by the learning store.
const DefaultDBPath = "nexus_learning.db"

// Table names. The schema is shared by every backend.
const (
	TableConversations = "conversations"
	TablePatterns      = "knowledge_patterns"
	TableInsights      = "learning_insights"
)

// Feedback is a user rating for a single conversational turn.
type Feedback int

const (
	// FeedbackNegative marks an unhelpful answer.
	FeedbackNegative Feedback = -1

	// FeedbackNeutral marks an answer without a strong opinion.
	FeedbackNeutral Feedback = 0

	// FeedbackPositive marks a helpful answer.
	FeedbackPositive Feedback = 1
)

// Valid reports whether f is one of -1, 0 or 1.
func (f Feedback) Valid() bool {
	return f >= FeedbackNegative && f <= FeedbackPositive
}

// FeedbackPtr returns a pointer to f, for optional record fields.
func FeedbackPtr(f Feedback) *Feedback {
	return &f
}

// ConversationRecord is one completed turn as persisted in the conversations table.
//
// Records are immutable once inserted.
type ConversationRecord struct {
	// ID is the unique identifier of the record. Assigned by the store when zero.
	ID int64 `json:"id"`

	// UserInput is the raw user text.
	UserInput string `json:"user_input"`

	// AssistantResponse is the raw assistant text.
	AssistantResponse string `json:"assistant_response"`

	// Feedback is the user rating; nil when the turn was never rated.
	Feedback *Feedback `json:"feedback,omitempty"`

	// QualityScore is the mean of the five quality dimensions (0.0-1.0).
	QualityScore float64 `json:"quality_score"`

	// ResponseTime is the provider latency in seconds.
	ResponseTime float64 `json:"response_time"`

	// CreatedAt is when the record was inserted.
	CreatedAt time.Time `json:"created_at"`
}

// PatternType classifies a learned pattern.
type PatternType string

const (
	// PatternTopicExpertise links a topic to the response style used for it.
	PatternTopicExpertise PatternType = "topic_expertise"

	// PatternResponseQuality links a response style and intent to an outcome.
	PatternResponseQuality PatternType = "response_quality"

	// PatternUserPreferences is reserved for explicit user preferences.
	PatternUserPreferences PatternType = "user_preferences"

	// PatternConversationFlow is reserved for multi-turn flow observations.
	PatternConversationFlow PatternType = "conversation_flow"
)

// PatternTypes lists every pattern type in a stable order.
var PatternTypes = []PatternType{
	PatternResponseQuality,
	PatternTopicExpertise,
	PatternUserPreferences,
	PatternConversationFlow,
}

// PatternPayload is the structured body of a pattern.
//
// Topic patterns carry Topic and ResponseStyle; response quality patterns
// carry Style and Intent. Feedback and QualityScore describe the turn that
// produced the latest write.
type PatternPayload struct {
	Topic         string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	Style         string   `json:"style,omitempty" yaml:"style,omitempty"`
	Intent        string   `json:"intent,omitempty" yaml:"intent,omitempty"`
	ResponseStyle string   `json:"response_style,omitempty" yaml:"response_style,omitempty"`
	Feedback      Feedback `json:"feedback" yaml:"feedback"`
	QualityScore  float64  `json:"quality_score" yaml:"quality_score"`
}

// Pattern is a persisted correlation between conversation attributes and outcome.
type Pattern struct {
	// ID is the unique identifier of the pattern row.
	ID int64 `json:"id"`

	// Type is the pattern classification.
	Type PatternType `json:"pattern_type"`

	// Payload is the structured pattern body.
	Payload PatternPayload `json:"payload"`

	// SuccessRate is the historical success ratio (0.0-1.0).
	SuccessRate float64 `json:"success_rate"`

	// UsageCount is how many turns contributed to this pattern.
	UsageCount int `json:"usage_count"`

	// UpdatedAt is when the pattern was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the identity under which the pattern is upserted.
//
// Two patterns with the same Type and Key occupy a single row.
func (p *Pattern) Key() string {
	switch p.Type {
	case PatternTopicExpertise:
		return "topic=" + p.Payload.Topic
	case PatternResponseQuality:
		return "style=" + p.Payload.Style + ";intent=" + p.Payload.Intent
	default:
		data, _ := json.Marshal(p.Payload)
		return string(data)
	}
}

// Insight is a row of the learning_insights table.
type Insight struct {
	ID              int64     `json:"id"`
	Type            string    `json:"insight_type"`
	Data            string    `json:"insight_data"`
	ConfidenceScore float64   `json:"confidence_score"`
	ValidationCount int       `json:"validation_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Statistics aggregates the contents of the store.
//
// Every field is zero on an empty store.
type Statistics struct {
	TotalConversations   int                 `json:"total_conversations"`
	PositiveFeedbackRate float64             `json:"positive_feedback_rate"`
	AvgQualityScore      float64             `json:"avg_quality_score"`
	AvgResponseTime      float64             `json:"avg_response_time"`
	LearnedPatterns      map[PatternType]int `json:"learned_patterns"`
}

// Store defines the interface for learning store backends.
//
// All implementations (SQLite, PostgreSQL, OceanBase) must implement this interface.
// Every method is its own atomic unit; no transaction spans two calls.
type Store interface {
	// InsertConversation persists a completed turn.
	InsertConversation(ctx context.Context, record *ConversationRecord) error

	// RecentConversations returns up to limit records, newest first.
	RecentConversations(ctx context.Context, limit int) ([]*ConversationRecord, error)

	// UpsertPattern inserts a pattern or replaces the row with the same type and key.
	UpsertPattern(ctx context.Context, pattern *Pattern) error

	// GetPattern returns the pattern stored under typ and key, or ErrNotFound.
	GetPattern(ctx context.Context, typ PatternType, key string) (*Pattern, error)

	// GetPatterns returns all patterns of a type ordered by success rate (highest first).
	GetPatterns(ctx context.Context, typ PatternType) ([]*Pattern, error)

	// InsertInsight persists a learning insight.
	InsertInsight(ctx context.Context, insight *Insight) error

	// GetInsights returns up to limit insights of a type, newest first.
	GetInsights(ctx context.Context, insightType string, limit int) ([]*Insight, error)

	// Statistics computes aggregate statistics over the store.
	Statistics(ctx context.Context) (*Statistics, error)

	// Close closes the store and releases resources.
	Close() error
}
