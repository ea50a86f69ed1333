package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// IDGenerator hands out unique record IDs for backends that do not rely on
// auto-increment columns.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for the given snowflake node (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("NewIDGenerator: %w", err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new unique ID.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

// EncodePayload serializes a pattern payload for the pattern_data column.
func EncodePayload(p PatternPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// ScanConversation reads a conversation row selected as
// id, user_input, assistant_response, user_feedback, context_quality, response_time, timestamp.
func ScanConversation(s Scanner) (*ConversationRecord, error) {
	var (
		record       ConversationRecord
		feedback     sql.NullInt64
		quality      sql.NullFloat64
		responseTime sql.NullFloat64
	)
	err := s.Scan(
		&record.ID,
		&record.UserInput,
		&record.AssistantResponse,
		&feedback,
		&quality,
		&responseTime,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if feedback.Valid {
		record.Feedback = FeedbackPtr(Feedback(feedback.Int64))
	}
	record.QualityScore = quality.Float64
	record.ResponseTime = responseTime.Float64
	return &record, nil
}

// ScanPattern reads a pattern row selected as
// id, pattern_type, pattern_data, success_rate, usage_count, last_updated.
func ScanPattern(s Scanner) (*Pattern, error) {
	var (
		pattern Pattern
		typ     string
		data    string
	)
	if err := s.Scan(&pattern.ID, &typ, &data, &pattern.SuccessRate, &pattern.UsageCount, &pattern.UpdatedAt); err != nil {
		return nil, err
	}
	pattern.Type = PatternType(typ)
	if err := json.Unmarshal([]byte(data), &pattern.Payload); err != nil {
		return nil, fmt.Errorf("parse pattern_data: %w", err)
	}
	return &pattern, nil
}

// ScanInsight reads an insight row selected as
// id, insight_type, insight_data, confidence_score, validation_count, created_at.
func ScanInsight(s Scanner) (*Insight, error) {
	var insight Insight
	err := s.Scan(
		&insight.ID,
		&insight.Type,
		&insight.Data,
		&insight.ConfidenceScore,
		&insight.ValidationCount,
		&insight.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &insight, nil
}

// FeedbackValue converts an optional rating to a driver value.
func FeedbackValue(f *Feedback) interface{} {
	if f == nil {
		return nil
	}
	return int64(*f)
}

// ScanPatternCounts fills counts from rows selected as pattern_type, COUNT(*).
func ScanPatternCounts(rows *sql.Rows, counts map[PatternType]int) error {
	for rows.Next() {
		var (
			typ   string
			count int
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return err
		}
		counts[PatternType(typ)] = count
	}
	return rows.Err()
}
