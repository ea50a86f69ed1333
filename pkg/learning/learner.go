package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// PatternLearner turns a rated turn into persisted conversation and pattern rows.
//
// Each store write is independent: a failure after the conversation insert
// leaves the conversation recorded and the patterns unlearned.
//
// Example usage:
//
//	learner := NewPatternLearner(store, nil)
//	result, err := learner.Learn(ctx, "How do I debug python code?", reply, storage.FeedbackPositive, nil)
type PatternLearner struct {
	store     storage.Store
	analyzer  *QualityAnalyzer
	extractor *InsightExtractor
	config    *Config
	logger    *slog.Logger
}

// NewPatternLearner creates a learner writing to store.
//
// Parameters:
//   - store: Learning store receiving conversations and patterns
//   - cfg: Optional configuration (nil uses ObservedDeriver and slog.Default())
func NewPatternLearner(store storage.Store, cfg *Config) *PatternLearner {
	cfg = cfg.withDefaults()
	return &PatternLearner{
		store:     store,
		analyzer:  NewQualityAnalyzer(),
		extractor: NewInsightExtractor(),
		config:    cfg,
		logger:    cfg.Logger,
	}
}

// Learn scores a turn, records it with its feedback and updates patterns.
//
// The steps are:
//  1. Analyze quality and extract insights
//  2. Persist the conversation record with the mean quality score
//  3. Upsert one topic_expertise pattern per topic
//  4. Upsert one response_quality pattern
//  5. Derive improvement suggestions
//
// Store errors are returned as-is; there is no retry and no rollback.
func (l *PatternLearner) Learn(
	ctx context.Context,
	userInput, assistantResponse string,
	feedback storage.Feedback,
	turn *TurnContext,
) (*Result, error) {
	if !feedback.Valid() {
		return nil, ErrInvalidFeedback
	}

	analysis := l.analyzer.Analyze(userInput, assistantResponse)
	insights := l.extractor.Extract(userInput, assistantResponse)
	quality := analysis.Overall()

	responseTime := 0.0
	if turn != nil {
		responseTime = turn.ResponseTime
	}

	err := l.store.InsertConversation(ctx, &storage.ConversationRecord{
		UserInput:         userInput,
		AssistantResponse: assistantResponse,
		Feedback:          storage.FeedbackPtr(feedback),
		QualityScore:      quality,
		ResponseTime:      responseTime,
	})
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	if err := l.updatePatterns(ctx, insights, feedback, quality); err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	suggestions := Suggest(analysis, insights, assistantResponse)

	l.logger.Info("learned from feedback",
		slog.Int("feedback", int(feedback)),
		slog.Float64("quality", quality),
		slog.Any("topics", insights.Topics),
		slog.String("style", string(insights.ResponseStyle)),
	)
	if len(suggestions) > 0 {
		l.logger.Info("improvement suggestions", slog.String("suggestions", strings.Join(suggestions, "; ")))
	}

	if l.config.RecordInsights {
		if err := l.recordSuggestions(ctx, suggestions, quality); err != nil {
			return nil, fmt.Errorf("learn: %w", err)
		}
	}

	return &Result{
		QualityAnalysis: analysis,
		Insights:        insights,
		Suggestions:     suggestions,
		OverallQuality:  quality,
	}, nil
}

// updatePatterns writes the topic_expertise and response_quality patterns for a turn.
func (l *PatternLearner) updatePatterns(ctx context.Context, insights Insights, feedback storage.Feedback, quality float64) error {
	patterns := make([]*storage.Pattern, 0, len(insights.Topics)+1)
	for _, topic := range insights.Topics {
		patterns = append(patterns, &storage.Pattern{
			Type: storage.PatternTopicExpertise,
			Payload: storage.PatternPayload{
				Topic:         topic,
				Feedback:      feedback,
				QualityScore:  quality,
				ResponseStyle: string(insights.ResponseStyle),
			},
		})
	}
	patterns = append(patterns, &storage.Pattern{
		Type: storage.PatternResponseQuality,
		Payload: storage.PatternPayload{
			Style:        string(insights.ResponseStyle),
			Intent:       string(insights.UserIntent),
			Feedback:     feedback,
			QualityScore: quality,
		},
	})

	for _, p := range patterns {
		if err := l.config.Deriver.Derive(ctx, l.store, p, feedback); err != nil {
			return err
		}
		if err := l.store.UpsertPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// recordSuggestions persists suggestions as learning insights.
// Confidence is higher for poorly scored turns.
func (l *PatternLearner) recordSuggestions(ctx context.Context, suggestions []string, quality float64) error {
	for _, s := range suggestions {
		err := l.store.InsertInsight(ctx, &storage.Insight{
			Type:            InsightTypeSuggestion,
			Data:            s,
			ConfidenceScore: clamp01(1.0 - quality),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Suggest maps low quality scores to improvement suggestions.
//
// Thresholds: relevance < 0.6, completeness < 0.5, clarity < 0.6,
// engagement < 0.4. A question answered without any '?' also asks for
// clarifying questions.
func Suggest(analysis QualityAnalysis, insights Insights, assistantResponse string) []string {
	suggestions := []string{}
	if analysis.Relevance < 0.6 {
		suggestions = append(suggestions, SuggestRelevance)
	}
	if analysis.Completeness < 0.5 {
		suggestions = append(suggestions, SuggestCompleteness)
	}
	if analysis.Clarity < 0.6 {
		suggestions = append(suggestions, SuggestClarity)
	}
	if analysis.Engagement < 0.4 {
		suggestions = append(suggestions, SuggestEngagement)
	}
	if insights.UserIntent == IntentQuestion && !strings.Contains(assistantResponse, "?") {
		suggestions = append(suggestions, SuggestClarification)
	}
	return suggestions
}
