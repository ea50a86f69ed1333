package learning_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-ai/nexus-go/pkg/learning"
	"github.com/nexus-ai/nexus-go/pkg/storage"
	sqliteStore "github.com/nexus-ai/nexus-go/pkg/storage/sqlite"
)

func newTestStore(t *testing.T) *sqliteStore.Client {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "nexus_learning.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPatternLearner_LearnPersistsTopicPattern(t *testing.T) {
	store := newTestStore(t)
	learner := learning.NewPatternLearner(store, nil)
	ctx := context.Background()

	result, err := learner.Learn(ctx,
		"Can you help me debug this python code?",
		"Sure! Print the variables before the loop.",
		storage.FeedbackPositive,
		&learning.TurnContext{ResponseTime: 1.5},
	)
	require.NoError(t, err)
	assert.Contains(t, result.Insights.Topics, "programming")
	assert.InDelta(t, result.QualityAnalysis.Overall(), result.OverallQuality, 1e-12)

	patterns, err := store.GetPatterns(ctx, storage.PatternTopicExpertise)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "programming", patterns[0].Payload.Topic)
	assert.Equal(t, storage.FeedbackPositive, patterns[0].Payload.Feedback)
	assert.Equal(t, string(learning.StyleConversational), patterns[0].Payload.ResponseStyle)
	assert.Equal(t, 0.0, patterns[0].SuccessRate)
	assert.Equal(t, 0, patterns[0].UsageCount)

	styles, err := store.GetPatterns(ctx, storage.PatternResponseQuality)
	require.NoError(t, err)
	require.Len(t, styles, 1)
	assert.Equal(t, string(learning.StyleConversational), styles[0].Payload.Style)
	assert.Equal(t, string(learning.IntentQuestion), styles[0].Payload.Intent)

	records, err := store.RecentConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Feedback)
	assert.Equal(t, storage.FeedbackPositive, *records[0].Feedback)
	assert.InDelta(t, result.OverallQuality, records[0].QualityScore, 1e-9)
	assert.InDelta(t, 1.5, records[0].ResponseTime, 1e-9)
}

func TestPatternLearner_RepeatedTopicKeepsOneRow(t *testing.T) {
	store := newTestStore(t)
	learner := learning.NewPatternLearner(store, nil)
	ctx := context.Background()

	_, err := learner.Learn(ctx, "Explain this python function", "It adds numbers.", storage.FeedbackNegative, nil)
	require.NoError(t, err)
	_, err = learner.Learn(ctx, "Review my python code", "Looks good!", storage.FeedbackPositive, nil)
	require.NoError(t, err)

	patterns, err := store.GetPatterns(ctx, storage.PatternTopicExpertise)
	require.NoError(t, err)

	var programming []*storage.Pattern
	for _, p := range patterns {
		if p.Payload.Topic == "programming" {
			programming = append(programming, p)
		}
	}
	require.Len(t, programming, 1)
	assert.Equal(t, storage.FeedbackPositive, programming[0].Payload.Feedback)
	assert.Equal(t, string(learning.StyleConversational), programming[0].Payload.ResponseStyle)

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalConversations)
	assert.InDelta(t, 0.5, stats.PositiveFeedbackRate, 1e-9)
}

func TestPatternLearner_InvalidFeedback(t *testing.T) {
	store := newTestStore(t)
	learner := learning.NewPatternLearner(store, nil)

	_, err := learner.Learn(context.Background(), "hi", "hello", storage.Feedback(3), nil)
	assert.True(t, errors.Is(err, learning.ErrInvalidFeedback))

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalConversations)
}

func TestPatternLearner_StoreFailurePropagates(t *testing.T) {
	store := newTestStore(t)
	learner := learning.NewPatternLearner(store, nil)
	require.NoError(t, store.Close())

	_, err := learner.Learn(context.Background(), "hi", "hello", storage.FeedbackNeutral, nil)
	assert.Error(t, err)
}

func TestPatternLearner_RecordInsights(t *testing.T) {
	store := newTestStore(t)
	learner := learning.NewPatternLearner(store, &learning.Config{RecordInsights: true})
	ctx := context.Background()

	result, err := learner.Learn(ctx, "What is recursion?", "A call.", storage.FeedbackNeutral, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Suggestions)

	insights, err := store.GetInsights(ctx, learning.InsightTypeSuggestion, 20)
	require.NoError(t, err)
	assert.Len(t, insights, len(result.Suggestions))
	for _, in := range insights {
		assert.InDelta(t, 1.0-result.OverallQuality, in.ConfidenceScore, 1e-9)
	}
}

func TestSuggest(t *testing.T) {
	low := learning.QualityAnalysis{Relevance: 0.1, Completeness: 0.1, Clarity: 0.1, Engagement: 0.1, TechnicalAccuracy: 0.5}
	high := learning.QualityAnalysis{Relevance: 0.6, Completeness: 0.5, Clarity: 0.6, Engagement: 0.4, TechnicalAccuracy: 1.0}

	got := learning.Suggest(low, learning.Insights{UserIntent: learning.IntentQuestion}, "No question mark here.")
	assert.Equal(t, []string{
		learning.SuggestRelevance,
		learning.SuggestCompleteness,
		learning.SuggestClarity,
		learning.SuggestEngagement,
		learning.SuggestClarification,
	}, got)

	got = learning.Suggest(high, learning.Insights{UserIntent: learning.IntentQuestion}, "Does that help?")
	assert.Empty(t, got)

	got = learning.Suggest(high, learning.Insights{UserIntent: learning.IntentGeneralInteraction}, "Fine.")
	assert.Empty(t, got)
}

func TestFeedbackDeriver(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	deriver := learning.FeedbackDeriver{}

	write := func(f storage.Feedback) *storage.Pattern {
		p := &storage.Pattern{
			Type:    storage.PatternTopicExpertise,
			Payload: storage.PatternPayload{Topic: "science", Feedback: f},
		}
		require.NoError(t, deriver.Derive(ctx, store, p, f))
		require.NoError(t, store.UpsertPattern(ctx, p))
		return p
	}

	p := write(storage.FeedbackPositive)
	assert.Equal(t, 1, p.UsageCount)
	assert.InDelta(t, 1.0, p.SuccessRate, 1e-9)

	p = write(storage.FeedbackNegative)
	assert.Equal(t, 2, p.UsageCount)
	assert.InDelta(t, 0.5, p.SuccessRate, 1e-9)

	p = write(storage.FeedbackPositive)
	assert.Equal(t, 3, p.UsageCount)
	assert.InDelta(t, 2.0/3.0, p.SuccessRate, 1e-9)
}

func TestDeriverByName(t *testing.T) {
	assert.IsType(t, learning.FeedbackDeriver{}, learning.DeriverByName("feedback"))
	assert.IsType(t, learning.ObservedDeriver{}, learning.DeriverByName("observed"))
	assert.IsType(t, learning.ObservedDeriver{}, learning.DeriverByName(""))
}
