// Package learning provides the feedback-driven adaptation layer.
//
// It scores finished turns with surface heuristics (keyword overlap, sentence
// length, marker counts), persists the resulting patterns and turns the
// successful ones into one-turn additions to the system prompt. Nothing here
// is machine learning: every classifier is a deterministic keyword rule.
package learning

import (
	"errors"
	"log/slog"
)

// ErrInvalidFeedback indicates a rating outside -1, 0, 1.
var ErrInvalidFeedback = errors.New("feedback must be -1, 0 or 1")

// SuccessThreshold is the success rate a pattern must exceed before it
// influences the system prompt.
const SuccessThreshold = 0.7

// QualityAnalysis holds the five heuristic quality scores of a turn, each in [0, 1].
type QualityAnalysis struct {
	Relevance         float64 `json:"relevance_score"`
	Completeness      float64 `json:"completeness_score"`
	Clarity           float64 `json:"clarity_score"`
	Engagement        float64 `json:"engagement_score"`
	TechnicalAccuracy float64 `json:"technical_accuracy"`
}

// Overall returns the unweighted mean of the five dimensions.
func (q QualityAnalysis) Overall() float64 {
	return (q.Relevance + q.Completeness + q.Clarity + q.Engagement + q.TechnicalAccuracy) / 5
}

// Intent is the inferred purpose of a user message.
type Intent string

const (
	IntentQuestion           Intent = "question"
	IntentHelpRequest        Intent = "help_request"
	IntentCreationRequest    Intent = "creation_request"
	IntentGeneralInteraction Intent = "general_interaction"
)

// Style is the shape of an assistant response.
type Style string

const (
	StyleDetailed       Style = "detailed"
	StyleCodeFocused    Style = "code_focused"
	StyleConversational Style = "conversational"
	StyleConcise        Style = "concise"
)

// Insights is what the extractor learns about a single turn.
type Insights struct {
	Topics        []string `json:"topics"`
	UserIntent    Intent   `json:"user_intent"`
	ResponseStyle Style    `json:"response_style"`
}

// Improvement suggestions produced by PatternLearner.
const (
	SuggestRelevance     = "Improve response relevance by focusing more on user keywords"
	SuggestCompleteness  = "Provide more comprehensive answers"
	SuggestClarity       = "Use simpler sentence structures for better clarity"
	SuggestEngagement    = "Add more engaging elements like examples or questions"
	SuggestClarification = "Consider asking clarifying questions for better understanding"
)

// InsightTypeSuggestion is the learning_insights type used for recorded suggestions.
const InsightTypeSuggestion = "improvement_suggestion"

// TurnContext carries per-turn measurements that are not part of the text.
type TurnContext struct {
	// ResponseTime is the provider latency in seconds.
	ResponseTime float64
}

// Result is the outcome of learning from one turn.
type Result struct {
	QualityAnalysis QualityAnalysis `json:"quality_analysis"`
	Insights        Insights        `json:"insights"`
	Suggestions     []string        `json:"suggestions"`
	OverallQuality  float64         `json:"overall_quality"`
}

// Config contains configuration for the learner and the prompt adapter.
type Config struct {
	// Deriver computes success rate and usage count for each pattern write.
	// Defaults to ObservedDeriver.
	Deriver SuccessRateDeriver

	// RecordInsights persists every suggestion into the learning_insights table.
	RecordInsights bool

	// Logger receives learning events. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Deriver == nil {
		out.Deriver = ObservedDeriver{}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

