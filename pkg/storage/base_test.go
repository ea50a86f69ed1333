package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

func TestPatternKey(t *testing.T) {
	tests := []struct {
		name    string
		pattern storage.Pattern
		want    string
	}{
		{
			name: "topic expertise keyed by topic",
			pattern: storage.Pattern{
				Type:    storage.PatternTopicExpertise,
				Payload: storage.PatternPayload{Topic: "science", ResponseStyle: "detailed", QualityScore: 0.4},
			},
			want: "topic=science",
		},
		{
			name: "response quality keyed by style and intent",
			pattern: storage.Pattern{
				Type:    storage.PatternResponseQuality,
				Payload: storage.PatternPayload{Style: "concise", Intent: "question", Feedback: storage.FeedbackPositive},
			},
			want: "style=concise;intent=question",
		},
		{
			name: "other types keyed by full payload",
			pattern: storage.Pattern{
				Type:    storage.PatternUserPreferences,
				Payload: storage.PatternPayload{Style: "concise"},
			},
			want: `{"style":"concise","feedback":0,"quality_score":0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.Key())
		})
	}
}

func TestFeedbackValid(t *testing.T) {
	assert.True(t, storage.FeedbackNegative.Valid())
	assert.True(t, storage.FeedbackNeutral.Valid())
	assert.True(t, storage.FeedbackPositive.Valid())
	assert.False(t, storage.Feedback(2).Valid())
	assert.False(t, storage.Feedback(-2).Valid())
}

func TestFeedbackValue(t *testing.T) {
	assert.Nil(t, storage.FeedbackValue(nil))
	assert.Equal(t, int64(-1), storage.FeedbackValue(storage.FeedbackPtr(storage.FeedbackNegative)))
}

func TestIDGenerator(t *testing.T) {
	gen, err := storage.NewIDGenerator(7)
	assert.NoError(t, err)

	a, b := gen.Next(), gen.Next()
	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a)

	_, err = storage.NewIDGenerator(5000)
	assert.Error(t, err)
}
