package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-ai/nexus-go/pkg/storage"
	postgresStore "github.com/nexus-ai/nexus-go/pkg/storage/postgres"
)

func setupPostgresTest(t *testing.T) *postgresStore.Client {
	t.Helper()

	// Load .env file from project root
	_ = godotenv.Load(filepath.Join("..", "..", "..", ".env"))

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	portStr := os.Getenv("POSTGRES_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: invalid POSTGRES_PORT: %s", portStr)
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_PASSWORD not set")
	}

	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "nexus_test"
	}

	store, err := postgresStore.NewClient(&postgresStore.Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
	})
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConfigDSN(t *testing.T) {
	cfg := &postgresStore.Config{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "learn"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=learn sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestPostgresClient_ConversationsAndStatistics(t *testing.T) {
	store := setupPostgresTest(t)
	ctx := context.Background()

	before, err := store.Statistics(ctx)
	require.NoError(t, err)

	record := &storage.ConversationRecord{
		UserInput:         "How do I debug python code?",
		AssistantResponse: "Use pdb!",
		Feedback:          storage.FeedbackPtr(storage.FeedbackPositive),
		QualityScore:      0.7,
		ResponseTime:      1.5,
	}
	require.NoError(t, store.InsertConversation(ctx, record))
	assert.NotZero(t, record.ID)

	after, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalConversations+1, after.TotalConversations)

	recent, err := store.RecentConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, record.ID, recent[0].ID)
	require.NotNil(t, recent[0].Feedback)
	assert.Equal(t, storage.FeedbackPositive, *recent[0].Feedback)
}

func TestPostgresClient_UpsertPattern(t *testing.T) {
	store := setupPostgresTest(t)
	ctx := context.Background()

	topic := "topic-" + t.Name()
	first := &storage.Pattern{
		Type:    storage.PatternTopicExpertise,
		Payload: storage.PatternPayload{Topic: topic, ResponseStyle: "concise"},
	}
	require.NoError(t, store.UpsertPattern(ctx, first))

	second := &storage.Pattern{
		Type:        storage.PatternTopicExpertise,
		Payload:     storage.PatternPayload{Topic: topic, ResponseStyle: "detailed"},
		SuccessRate: 0.8,
		UsageCount:  2,
	}
	require.NoError(t, store.UpsertPattern(ctx, second))

	got, err := store.GetPattern(ctx, storage.PatternTopicExpertise, second.Key())
	require.NoError(t, err)
	assert.Equal(t, "detailed", got.Payload.ResponseStyle)
	assert.InDelta(t, 0.8, got.SuccessRate, 1e-9)
	assert.Equal(t, 2, got.UsageCount)

	_, err = store.GetPattern(ctx, storage.PatternTopicExpertise, "topic=missing-"+t.Name())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
