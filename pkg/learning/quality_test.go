package learning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-ai/nexus-go/pkg/learning"
)

func TestQualityAnalyzer_FunctionExample(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	analysis := analyzer.Analyze(
		"What is a function?",
		"A function is a reusable block of code. For example, here's one.",
	)

	assert.InDelta(t, 0.5, analysis.Relevance, 1e-9, "shares 'is' and 'a' with the question")
	assert.Equal(t, 1.0, analysis.Completeness)
	assert.Equal(t, 1.0, analysis.Clarity)
	assert.InDelta(t, 2.0/3.0, analysis.Engagement, 1e-9, "contains 'example' and 'here's'")
	assert.Equal(t, 1.0, analysis.TechnicalAccuracy)
}

func TestQualityAnalyzer_EmptyText(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	analysis := analyzer.Analyze("", "")

	assert.Equal(t, 0.0, analysis.Relevance)
	assert.Equal(t, 0.0, analysis.Completeness)
	assert.Equal(t, 1.0, analysis.Clarity)
	assert.Equal(t, 0.0, analysis.Engagement)
	assert.Equal(t, 1.0, analysis.TechnicalAccuracy)
	assert.InDelta(t, 0.4, analysis.Overall(), 1e-9)
}

func TestQualityAnalyzer_TechnicalMismatch(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	analysis := analyzer.Analyze("Which algorithm should I use", "Use the fast one")
	assert.Equal(t, 0.5, analysis.TechnicalAccuracy)

	analysis = analyzer.Analyze("Tell me a joke", "Why did the chicken cross the road")
	assert.Equal(t, 1.0, analysis.TechnicalAccuracy)
}

func TestQualityAnalyzer_Completeness(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	// 3 user words -> denominator max(6, 10) = 10; 5 response words.
	analysis := analyzer.Analyze("one two three", "a b c d e")
	assert.InDelta(t, 0.5, analysis.Completeness, 1e-9)

	// 10 user words -> denominator 20; 30 response words caps at 1.0.
	user := "w w w w w w w w w w"
	response := user + " " + user + " " + user
	analysis = analyzer.Analyze(user, response)
	assert.Equal(t, 1.0, analysis.Completeness)
}

func TestQualityAnalyzer_ClarityPenalizesLongSentences(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	// One sentence of 25 words plus the empty tail after the final period:
	// average 12.5 words -> 1 - (12.5-15)/20 = 1.125, capped at 1.0.
	long := "w w w w w w w w w w w w w w w w w w w w w w w w w."
	assert.Equal(t, 1.0, analyzer.Analyze("q", long).Clarity)

	// 45 words without a period: 1 - (45-15)/20 = -0.5, floored at 0.
	veryLong := ""
	for i := 0; i < 45; i++ {
		veryLong += "word "
	}
	assert.Equal(t, 0.0, analyzer.Analyze("q", veryLong).Clarity)

	// 25 words without a period: 1 - (25-15)/20 = 0.5.
	mid := "w w w w w w w w w w w w w w w w w w w w w w w w w"
	assert.InDelta(t, 0.5, analyzer.Analyze("q", mid).Clarity, 1e-9)
}

func TestQualityAnalyzer_EngagementSaturates(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	analysis := analyzer.Analyze("q", "Imagine this example? Consider it. Let me show: here's how.")
	assert.Equal(t, 1.0, analysis.Engagement)
}

func TestQualityAnalyzer_IsPureAndBounded(t *testing.T) {
	analyzer := learning.NewQualityAnalyzer()

	inputs := [][2]string{
		{"What is a function?", "A function is a reusable block of code."},
		{"", "anything at all"},
		{"hello hello hello", ""},
		{"Explain the data process", "The system uses a method. It is an algorithm! Really?"},
	}

	for _, in := range inputs {
		first := analyzer.Analyze(in[0], in[1])
		second := analyzer.Analyze(in[0], in[1])
		assert.Equal(t, first, second)

		for _, v := range []float64{first.Relevance, first.Completeness, first.Clarity, first.Engagement, first.TechnicalAccuracy} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestQualityAnalysis_Overall(t *testing.T) {
	q := learning.QualityAnalysis{
		Relevance:         1.0,
		Completeness:      0.5,
		Clarity:           0.5,
		Engagement:        0.0,
		TechnicalAccuracy: 1.0,
	}
	assert.InDelta(t, 0.6, q.Overall(), 1e-9)
}
