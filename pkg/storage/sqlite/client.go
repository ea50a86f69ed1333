// Package sqlite provides the SQLite implementation of the learning store.
//
// SQLite is the default backend: a single file (nexus_learning.db unless
// configured otherwise) created on first use. Pattern payloads are stored as
// JSON strings in TEXT fields.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite connection pool.
	db *sql.DB

	// ids generates record identifiers.
	ids *storage.IDGenerator
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file (default: nexus_learning.db).
	DBPath string

	// NodeID is the snowflake node used for record IDs (default: 1).
	NodeID int64
}

// NewClient opens (and if necessary creates) the SQLite learning store.
//
// Schema creation is idempotent: all three tables exist after a successful call.
func NewClient(cfg *Config) (*Client, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = storage.DefaultDBPath
	}

	if dbPath != ":memory:" {
		dbDir := filepath.Dir(dbPath)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	// One writer at a time; idle connections are released between operations.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(30 * time.Second)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
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

// initTables creates the conversations, knowledge_patterns and learning_insights tables.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			user_input TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			user_feedback INTEGER,
			context_quality REAL,
			response_time REAL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_patterns (
			id INTEGER PRIMARY KEY,
			pattern_type TEXT NOT NULL,
			pattern_key TEXT NOT NULL,
			pattern_data TEXT NOT NULL,
			success_rate REAL DEFAULT 0.0,
			usage_count INTEGER DEFAULT 0,
			last_updated DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (pattern_type, pattern_key)
		)`,
		`CREATE TABLE IF NOT EXISTS learning_insights (
			id INTEGER PRIMARY KEY,
			insight_type TEXT NOT NULL,
			insight_data TEXT NOT NULL,
			confidence_score REAL DEFAULT 0.0,
			validation_count INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_patterns_type ON knowledge_patterns(pattern_type)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	if err := c.migratePatternKeys(ctx); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// migratePatternKeys upgrades a knowledge_patterns table created without the
// pattern_key column: the key is backfilled from pattern_data, only the newest
// row per (pattern_type, pattern_key) is kept and the unique index is added.
func (c *Client) migratePatternKeys(ctx context.Context) error {
	hasKey, err := c.hasColumn(ctx, "knowledge_patterns", "pattern_key")
	if err != nil || hasKey {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`ALTER TABLE knowledge_patterns ADD COLUMN pattern_key TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add pattern_key: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, pattern_type, pattern_data FROM knowledge_patterns`)
	if err != nil {
		return err
	}
	keys := make(map[int64]string)
	for rows.Next() {
		var (
			id      int64
			typ     string
			payload string
		)
		if err := rows.Scan(&id, &typ, &payload); err != nil {
			_ = rows.Close()
			return err
		}
		keys[id] = legacyPatternKey(storage.PatternType(typ), payload)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`UPDATE knowledge_patterns SET pattern_key = ? WHERE id = ?`, key, id); err != nil {
			return fmt.Errorf("backfill pattern_key: %w", err)
		}
	}

	statements := []string{
		`DELETE FROM knowledge_patterns WHERE id NOT IN (
			SELECT MAX(id) FROM knowledge_patterns GROUP BY pattern_type, pattern_key
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_knowledge_patterns_key
			ON knowledge_patterns(pattern_type, pattern_key)`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate knowledge_patterns: %w", err)
		}
	}
	return tx.Commit()
}

// hasColumn reports whether table has a column named column.
func (c *Client) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// legacyPatternKey derives the upsert key of a row written without one.
// Payloads that do not decode keep their raw text as the key.
func legacyPatternKey(typ storage.PatternType, data string) string {
	var payload storage.PatternPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return data
	}
	p := storage.Pattern{Type: typ, Payload: payload}
	return p.Key()
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
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
		LIMIT ?
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentConversations: %w", err)
	}
	return records, nil
}

// UpsertPattern inserts a pattern or replaces the row sharing its type and key.
//
// The payload, success rate, usage count and timestamp are all taken from
// the incoming pattern; nothing is merged with the previous row.
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
		ON CONFLICT (pattern_type, pattern_key) DO UPDATE SET
			pattern_data = excluded.pattern_data,
			success_rate = excluded.success_rate,
			usage_count = excluded.usage_count,
			last_updated = excluded.last_updated
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPatterns: %w", err)
	}
	return patterns, nil
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetInsights: %w", err)
	}
	return insights, nil
}

// Statistics computes aggregate statistics over the store.
//
// Missing feedback counts as non-positive. An empty store yields zero values.
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
