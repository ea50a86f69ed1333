// Package postgres provides the PostgreSQL implementation of the learning store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// Client is a PostgreSQL learning store.
type Client struct {
	db  *sql.DB
	ids *storage.IDGenerator
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	NodeID   int64
}

// DSN renders the lib/pq connection string.
func (cfg *Config) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
}

// NewClient creates a new PostgreSQL client and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	nodeID := cfg.NodeID
	if nodeID == 0 {
		nodeID = 1
	}
	ids, err := storage.NewIDGenerator(nodeID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client := &Client{db: db, ids: ids}
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

// initTables initializes the three learning tables.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGINT PRIMARY KEY,
			user_input TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			user_feedback INTEGER,
			context_quality DOUBLE PRECISION,
			response_time DOUBLE PRECISION,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_patterns (
			id BIGINT PRIMARY KEY,
			pattern_type VARCHAR(64) NOT NULL,
			pattern_key TEXT NOT NULL,
			pattern_data JSONB NOT NULL,
			success_rate DOUBLE PRECISION DEFAULT 0.0,
			usage_count INTEGER DEFAULT 0,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (pattern_type, pattern_key)
		)`,
		`CREATE TABLE IF NOT EXISTS learning_insights (
			id BIGINT PRIMARY KEY,
			insight_type VARCHAR(64) NOT NULL,
			insight_data TEXT NOT NULL,
			confidence_score DOUBLE PRECISION DEFAULT 0.0,
			validation_count INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_patterns_type ON knowledge_patterns(pattern_type)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// InsertConversation persists a completed turn.
func (c *Client) InsertConversation(ctx context.Context, record *storage.ConversationRecord) error {
	if record.ID == 0 {
		record.ID = c.ids.Next()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO conversations
		(id, user_input, assistant_response, user_feedback, context_quality, response_time, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		record.ID,
		record.UserInput,
		record.AssistantResponse,
		storage.FeedbackValue(record.Feedback),
		record.QualityScore,
		record.ResponseTime,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertConversation: %w", err)
	}
	return nil
}

// RecentConversations returns up to limit records, newest first.
func (c *Client) RecentConversations(ctx context.Context, limit int) ([]*storage.ConversationRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_input, assistant_response, user_feedback, context_quality, response_time, timestamp
		FROM conversations
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentConversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.ConversationRecord
	for rows.Next() {
		record, err := storage.ScanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("RecentConversations: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpsertPattern inserts a pattern or replaces the row sharing its type and key.
func (c *Client) UpsertPattern(ctx context.Context, pattern *storage.Pattern) error {
	data, err := storage.EncodePayload(pattern.Payload)
	if err != nil {
		return fmt.Errorf("UpsertPattern: %w", err)
	}
	pattern.UpdatedAt = time.Now().UTC()

	err = c.db.QueryRowContext(ctx, `
		INSERT INTO knowledge_patterns
		(id, pattern_type, pattern_key, pattern_data, success_rate, usage_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pattern_type, pattern_key) DO UPDATE SET
			pattern_data = EXCLUDED.pattern_data,
			success_rate = EXCLUDED.success_rate,
			usage_count = EXCLUDED.usage_count,
			last_updated = EXCLUDED.last_updated
		RETURNING id
	`,
		c.ids.Next(),
		string(pattern.Type),
		pattern.Key(),
		data,
		pattern.SuccessRate,
		pattern.UsageCount,
		pattern.UpdatedAt,
	).Scan(&pattern.ID)
	if err != nil {
		return fmt.Errorf("UpsertPattern: %w", err)
	}
	return nil
}

// GetPattern returns the pattern stored under typ and key.
func (c *Client) GetPattern(ctx context.Context, typ storage.PatternType, key string) (*storage.Pattern, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, pattern_type, pattern_data::text, success_rate, usage_count, last_updated
		FROM knowledge_patterns
		WHERE pattern_type = $1 AND pattern_key = $2
	`, string(typ), key)

	pattern, err := storage.ScanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPattern: %w", err)
	}
	return pattern, nil
}

// GetPatterns returns all patterns of a type ordered by success rate (highest first).
func (c *Client) GetPatterns(ctx context.Context, typ storage.PatternType) ([]*storage.Pattern, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, pattern_type, pattern_data::text, success_rate, usage_count, last_updated
		FROM knowledge_patterns
		WHERE pattern_type = $1
		ORDER BY success_rate DESC, id ASC
	`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("GetPatterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []*storage.Pattern
	for rows.Next() {
		pattern, err := storage.ScanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPatterns: %w", err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, rows.Err()
}

// InsertInsight persists a learning insight.
func (c *Client) InsertInsight(ctx context.Context, insight *storage.Insight) error {
	if insight.ID == 0 {
		insight.ID = c.ids.Next()
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO learning_insights
		(id, insight_type, insight_data, confidence_score, validation_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, insight.ID, insight.Type, insight.Data, insight.ConfidenceScore, insight.ValidationCount, insight.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertInsight: %w", err)
	}
	return nil
}

// GetInsights returns up to limit insights of a type, newest first.
func (c *Client) GetInsights(ctx context.Context, insightType string, limit int) ([]*storage.Insight, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, insight_type, insight_data, confidence_score, validation_count, created_at
		FROM learning_insights
		WHERE insight_type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, insightType, limit)
	if err != nil {
		return nil, fmt.Errorf("GetInsights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var insights []*storage.Insight
	for rows.Next() {
		insight, err := storage.ScanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("GetInsights: %w", err)
		}
		insights = append(insights, insight)
	}
	return insights, rows.Err()
}

// Statistics computes aggregate statistics over the store.
func (c *Client) Statistics(ctx context.Context) (*storage.Statistics, error) {
	stats := &storage.Statistics{LearnedPatterns: make(map[storage.PatternType]int)}

	err := c.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(CASE WHEN user_feedback = 1 THEN 1.0 ELSE 0.0 END), 0.0)::float8,
			COALESCE(AVG(context_quality), 0.0)::float8,
			COALESCE(AVG(response_time), 0.0)::float8
		FROM conversations
	`).Scan(
		&stats.TotalConversations,
		&stats.PositiveFeedbackRate,
		&stats.AvgQualityScore,
		&stats.AvgResponseTime,
	)
	if err != nil {
		return nil, fmt.Errorf("Statistics: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT pattern_type, COUNT(*) FROM knowledge_patterns GROUP BY pattern_type")
	if err != nil {
		return nil, fmt.Errorf("Statistics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if err := storage.ScanPatternCounts(rows, stats.LearnedPatterns); err != nil {
		return nil, fmt.Errorf("Statistics: %w", err)
	}
	return stats, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
