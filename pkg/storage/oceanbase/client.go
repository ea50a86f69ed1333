// Package oceanbase provides the OceanBase implementation of the learning store.
//
// OceanBase speaks the MySQL wire protocol, so the store also runs against
// plain MySQL deployments.
package oceanbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// Client is an OceanBase learning store.
type Client struct {
	db  *sql.DB
	ids *storage.IDGenerator
}

// Config contains OceanBase configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	NodeID   int64
}

// DSN renders the go-sql-driver/mysql connection string.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
}

// NewClient creates a new OceanBase client and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
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
		"CREATE TABLE IF NOT EXISTS conversations (" +
			"id BIGINT PRIMARY KEY, " +
			"user_input LONGTEXT NOT NULL, " +
			"assistant_response LONGTEXT NOT NULL, " +
			"user_feedback INT, " +
			"context_quality DOUBLE, " +
			"response_time DOUBLE, " +
			"`timestamp` DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6))",
		"CREATE TABLE IF NOT EXISTS knowledge_patterns (" +
			"id BIGINT PRIMARY KEY, " +
			"pattern_type VARCHAR(64) NOT NULL, " +
			"pattern_key VARCHAR(512) NOT NULL, " +
			"pattern_data LONGTEXT NOT NULL, " +
			"success_rate DOUBLE DEFAULT 0.0, " +
			"usage_count INT DEFAULT 0, " +
			"last_updated DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6), " +
			"UNIQUE KEY uk_pattern (pattern_type, pattern_key), " +
			"INDEX idx_pattern_type (pattern_type))",
		"CREATE TABLE IF NOT EXISTS learning_insights (" +
			"id BIGINT PRIMARY KEY, " +
			"insight_type VARCHAR(64) NOT NULL, " +
			"insight_data LONGTEXT NOT NULL, " +
			"confidence_score DOUBLE DEFAULT 0.0, " +
			"validation_count INT DEFAULT 0, " +
			"created_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6))",
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

	_, err := c.db.ExecContext(ctx,
		"INSERT INTO conversations "+
			"(id, user_input, assistant_response, user_feedback, context_quality, response_time, `timestamp`) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
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

	rows, err := c.db.QueryContext(ctx,
		"SELECT id, user_input, assistant_response, user_feedback, context_quality, response_time, `timestamp` "+
			"FROM conversations ORDER BY `timestamp` DESC, id DESC LIMIT ?", limit)
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

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO knowledge_patterns
		(id, pattern_type, pattern_key, pattern_data, success_rate, usage_count, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			pattern_data = VALUES(pattern_data),
			success_rate = VALUES(success_rate),
			usage_count = VALUES(usage_count),
			last_updated = VALUES(last_updated)
	`,
		c.ids.Next(),
		string(pattern.Type),
		pattern.Key(),
		data,
		pattern.SuccessRate,
		pattern.UsageCount,
		pattern.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("UpsertPattern: %w", err)
	}

	err = c.db.QueryRowContext(ctx,
		"SELECT id FROM knowledge_patterns WHERE pattern_type = ? AND pattern_key = ?",
		string(pattern.Type), pattern.Key(),
	).Scan(&pattern.ID)
	if err != nil {
		return fmt.Errorf("UpsertPattern: %w", err)
	}
	return nil
}

// GetPattern returns the pattern stored under typ and key.
func (c *Client) GetPattern(ctx context.Context, typ storage.PatternType, key string) (*storage.Pattern, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, pattern_type, pattern_data, success_rate, usage_count, last_updated
		FROM knowledge_patterns
		WHERE pattern_type = ? AND pattern_key = ?
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
		SELECT id, pattern_type, pattern_data, success_rate, usage_count, last_updated
		FROM knowledge_patterns
		WHERE pattern_type = ?
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
		VALUES (?, ?, ?, ?, ?, ?)
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
		WHERE insight_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
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
			COALESCE(AVG(CASE WHEN user_feedback = 1 THEN 1.0 ELSE 0.0 END), 0.0),
			COALESCE(AVG(context_quality), 0.0),
			COALESCE(AVG(response_time), 0.0)
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
