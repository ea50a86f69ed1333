package oceanbase_test

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
	"github.com/nexus-ai/nexus-go/pkg/storage/oceanbase"
)

func setupOceanBaseTest(t *testing.T) *oceanbase.Client {
	t.Helper()

	_ = godotenv.Load(filepath.Join("..", "..", "..", ".env"))

	host := os.Getenv("OCEANBASE_HOST")
	if host == "" {
		t.Skip("Skipping OceanBase test: OCEANBASE_HOST not set")
	}
	port, err := strconv.Atoi(os.Getenv("OCEANBASE_PORT"))
	if err != nil {
		port = 2881
	}
	user := os.Getenv("OCEANBASE_USER")
	if user == "" {
		user = "root@test"
	}
	dbName := os.Getenv("OCEANBASE_DATABASE")
	if dbName == "" {
		dbName = "nexus_test"
	}

	store, err := oceanbase.NewClient(&oceanbase.Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: os.Getenv("OCEANBASE_PASSWORD"),
		DBName:   dbName,
	})
	if err != nil {
		t.Skipf("Skipping OceanBase test: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConfigDSN(t *testing.T) {
	cfg := &oceanbase.Config{Host: "ob", Port: 2881, User: "root@test", Password: "pw", DBName: "learn"}
	assert.Equal(t, "root@test:pw@tcp(ob:2881)/learn?parseTime=true&loc=UTC", cfg.DSN())
}

func TestOceanBaseClient_PatternsAndInsights(t *testing.T) {
	store := setupOceanBaseTest(t)
	ctx := context.Background()

	pattern := &storage.Pattern{
		Type:        storage.PatternResponseQuality,
		Payload:     storage.PatternPayload{Style: "code_focused", Intent: "creation_request"},
		SuccessRate: 0.9,
		UsageCount:  5,
	}
	require.NoError(t, store.UpsertPattern(ctx, pattern))

	got, err := store.GetPattern(ctx, storage.PatternResponseQuality, pattern.Key())
	require.NoError(t, err)
	assert.Equal(t, "code_focused", got.Payload.Style)
	assert.Equal(t, 5, got.UsageCount)

	require.NoError(t, store.InsertInsight(ctx, &storage.Insight{
		Type:            "improvement_suggestion",
		Data:            "Use simpler sentence structures for better clarity",
		ConfidenceScore: 0.35,
	}))
	insights, err := store.GetInsights(ctx, "improvement_suggestion", 1)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Use simpler sentence structures for better clarity", insights[0].Data)

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.LearnedPatterns[storage.PatternResponseQuality], 1)
}
