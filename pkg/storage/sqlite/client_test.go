package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-ai/nexus-go/pkg/storage"
	sqliteStore "github.com/nexus-ai/nexus-go/pkg/storage/sqlite"
)

func setupSQLiteTest(t *testing.T) *sqliteStore.Client {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "learning.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteClient_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "learning.db")

	first, err := sqliteStore.NewClient(&sqliteStore.Config{DBPath: path})
	require.NoError(t, err)
	require.NoError(t, first.InsertConversation(context.Background(), &storage.ConversationRecord{
		UserInput:         "hi",
		AssistantResponse: "hello",
	}))
	require.NoError(t, first.Close())

	second, err := sqliteStore.NewClient(&sqliteStore.Config{DBPath: path})
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	stats, err := second.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalConversations)
}

func TestSQLiteClient_StatisticsOnEmptyStore(t *testing.T) {
	store := setupSQLiteTest(t)

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalConversations)
	assert.Equal(t, 0.0, stats.PositiveFeedbackRate)
	assert.Equal(t, 0.0, stats.AvgQualityScore)
	assert.Equal(t, 0.0, stats.AvgResponseTime)
	assert.Empty(t, stats.LearnedPatterns)
}

func TestSQLiteClient_Statistics(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	records := []*storage.ConversationRecord{
		{UserInput: "a", AssistantResponse: "b", Feedback: storage.FeedbackPtr(storage.FeedbackPositive), QualityScore: 0.8, ResponseTime: 1.0},
		{UserInput: "c", AssistantResponse: "d", Feedback: storage.FeedbackPtr(storage.FeedbackNegative), QualityScore: 0.4, ResponseTime: 2.0},
		{UserInput: "e", AssistantResponse: "f", QualityScore: 0.6, ResponseTime: 3.0},
		{UserInput: "g", AssistantResponse: "h", Feedback: storage.FeedbackPtr(storage.FeedbackPositive), QualityScore: 0.2, ResponseTime: 2.0},
	}
	for _, r := range records {
		require.NoError(t, store.InsertConversation(ctx, r))
		assert.NotZero(t, r.ID)
	}

	require.NoError(t, store.UpsertPattern(ctx, &storage.Pattern{
		Type:    storage.PatternTopicExpertise,
		Payload: storage.PatternPayload{Topic: "programming"},
	}))
	require.NoError(t, store.UpsertPattern(ctx, &storage.Pattern{
		Type:    storage.PatternTopicExpertise,
		Payload: storage.PatternPayload{Topic: "science"},
	}))
	require.NoError(t, store.UpsertPattern(ctx, &storage.Pattern{
		Type:    storage.PatternResponseQuality,
		Payload: storage.PatternPayload{Style: "concise", Intent: "question"},
	}))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalConversations)
	assert.InDelta(t, 0.5, stats.PositiveFeedbackRate, 1e-9)
	assert.InDelta(t, 0.5, stats.AvgQualityScore, 1e-9)
	assert.InDelta(t, 2.0, stats.AvgResponseTime, 1e-9)
	assert.Equal(t, map[storage.PatternType]int{
		storage.PatternTopicExpertise:  2,
		storage.PatternResponseQuality: 1,
	}, stats.LearnedPatterns)
}

func TestSQLiteClient_RecentConversations(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	for _, input := range []string{"first", "second", "third"} {
		require.NoError(t, store.InsertConversation(ctx, &storage.ConversationRecord{
			UserInput:         input,
			AssistantResponse: "ok",
		}))
	}

	records, err := store.RecentConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].UserInput)
	assert.Equal(t, "second", records[1].UserInput)
	assert.Nil(t, records[0].Feedback)
}

func TestSQLiteClient_UpsertPatternReplaces(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	first := &storage.Pattern{
		Type: storage.PatternTopicExpertise,
		Payload: storage.PatternPayload{
			Topic:         "programming",
			Feedback:      storage.FeedbackNegative,
			QualityScore:  0.3,
			ResponseStyle: "concise",
		},
	}
	require.NoError(t, store.UpsertPattern(ctx, first))

	second := &storage.Pattern{
		Type: storage.PatternTopicExpertise,
		Payload: storage.PatternPayload{
			Topic:         "programming",
			Feedback:      storage.FeedbackPositive,
			QualityScore:  0.9,
			ResponseStyle: "detailed",
		},
	}
	require.NoError(t, store.UpsertPattern(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	patterns, err := store.GetPatterns(ctx, storage.PatternTopicExpertise)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "detailed", patterns[0].Payload.ResponseStyle)
	assert.Equal(t, storage.FeedbackPositive, patterns[0].Payload.Feedback)
	assert.InDelta(t, 0.9, patterns[0].Payload.QualityScore, 1e-9)
}

func TestSQLiteClient_GetPatternsOrderedBySuccessRate(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	for topic, rate := range map[string]float64{"science": 0.2, "creative": 0.9, "technical": 0.5} {
		require.NoError(t, store.UpsertPattern(ctx, &storage.Pattern{
			Type:        storage.PatternTopicExpertise,
			Payload:     storage.PatternPayload{Topic: topic},
			SuccessRate: rate,
			UsageCount:  3,
		}))
	}

	patterns, err := store.GetPatterns(ctx, storage.PatternTopicExpertise)
	require.NoError(t, err)
	require.Len(t, patterns, 3)
	assert.Equal(t, "creative", patterns[0].Payload.Topic)
	assert.Equal(t, "technical", patterns[1].Payload.Topic)
	assert.Equal(t, "science", patterns[2].Payload.Topic)
	assert.Equal(t, 3, patterns[0].UsageCount)

	none, err := store.GetPatterns(ctx, storage.PatternConversationFlow)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteClient_GetPattern(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	pattern := &storage.Pattern{
		Type:        storage.PatternResponseQuality,
		Payload:     storage.PatternPayload{Style: "detailed", Intent: "help_request"},
		SuccessRate: 0.75,
		UsageCount:  4,
	}
	require.NoError(t, store.UpsertPattern(ctx, pattern))

	got, err := store.GetPattern(ctx, storage.PatternResponseQuality, pattern.Key())
	require.NoError(t, err)
	assert.Equal(t, pattern.ID, got.ID)
	assert.InDelta(t, 0.75, got.SuccessRate, 1e-9)
	assert.Equal(t, 4, got.UsageCount)

	_, err = store.GetPattern(ctx, storage.PatternResponseQuality, "style=none;intent=none")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSQLiteClient_Insights(t *testing.T) {
	store := setupSQLiteTest(t)
	ctx := context.Background()

	require.NoError(t, store.InsertInsight(ctx, &storage.Insight{
		Type:            "improvement_suggestion",
		Data:            "Provide more comprehensive answers",
		ConfidenceScore: 0.4,
	}))
	require.NoError(t, store.InsertInsight(ctx, &storage.Insight{
		Type: "other",
		Data: "ignored",
	}))

	insights, err := store.GetInsights(ctx, "improvement_suggestion", 10)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Provide more comprehensive answers", insights[0].Data)
	assert.InDelta(t, 0.4, insights[0].ConfidenceScore, 1e-9)
}

func TestSQLiteClient_MigratesLegacyPatternTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus_learning.db")
	ctx := context.Background()

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE knowledge_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern_type TEXT NOT NULL,
			pattern_data TEXT NOT NULL,
			success_rate REAL DEFAULT 0.0,
			usage_count INTEGER DEFAULT 0,
			last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO knowledge_patterns (pattern_type, pattern_data) VALUES
			('topic_expertise', '{"topic": "programming", "feedback": -1, "quality_score": 0.3, "response_style": "concise"}'),
			('topic_expertise', '{"topic": "programming", "feedback": 1, "quality_score": 0.8, "response_style": "detailed"}'),
			('response_quality', '{"style": "detailed", "intent": "question", "feedback": 1, "quality_score": 0.8}')`,
	} {
		_, err := legacy.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, legacy.Close())

	store, err := sqliteStore.NewClient(&sqliteStore.Config{DBPath: path})
	require.NoError(t, err)

	topics, err := store.GetPatterns(ctx, storage.PatternTopicExpertise)
	require.NoError(t, err)
	require.Len(t, topics, 1, "duplicate legacy rows collapse to the newest")
	assert.Equal(t, "detailed", topics[0].Payload.ResponseStyle)

	update := &storage.Pattern{
		Type:    storage.PatternTopicExpertise,
		Payload: storage.PatternPayload{Topic: "programming", ResponseStyle: "code_focused"},
	}
	require.NoError(t, store.UpsertPattern(ctx, update))

	got, err := store.GetPattern(ctx, storage.PatternTopicExpertise, "topic=programming")
	require.NoError(t, err)
	assert.Equal(t, "code_focused", got.Payload.ResponseStyle)

	quality, err := store.GetPattern(ctx, storage.PatternResponseQuality, "style=detailed;intent=question")
	require.NoError(t, err)
	assert.Equal(t, storage.FeedbackPositive, quality.Payload.Feedback)
	require.NoError(t, store.Close())

	reopened, err := sqliteStore.NewClient(&sqliteStore.Config{DBPath: path})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	stats, err := reopened.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[storage.PatternType]int{
		storage.PatternTopicExpertise:  1,
		storage.PatternResponseQuality: 1,
	}, stats.LearnedPatterns)
}
