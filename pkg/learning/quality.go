package learning

import (
	"math"
	"strings"
)

// engagementMarkers raise the engagement score when present in a response.
var engagementMarkers = []string{"?", "example", "imagine", "consider", "let me", "here's"}

// technicalTerms decide whether a question expects a technical answer.
var technicalTerms = []string{"function", "algorithm", "data", "system", "process", "method"}

// QualityAnalyzer scores a turn on five heuristic dimensions.
//
// The analyzer is stateless and deterministic; every denominator is clamped
// so empty text never divides by zero.
//
// Example usage:
//
//	analyzer := NewQualityAnalyzer()
//	analysis := analyzer.Analyze("What is a function?", "A function is a reusable block of code.")
//	// analysis.Overall() is between 0.0 and 1.0
type QualityAnalyzer struct{}

// NewQualityAnalyzer creates a new quality analyzer.
func NewQualityAnalyzer() *QualityAnalyzer {
	return &QualityAnalyzer{}
}

// Analyze computes relevance, completeness, clarity, engagement and
// technical accuracy for a user message and the assistant's reply.
func (a *QualityAnalyzer) Analyze(userInput, assistantResponse string) QualityAnalysis {
	userWords := strings.Fields(userInput)
	responseWords := strings.Fields(assistantResponse)
	userLower := strings.ToLower(userInput)
	responseLower := strings.ToLower(assistantResponse)

	return QualityAnalysis{
		Relevance:         relevance(userLower, responseLower),
		Completeness:      completeness(len(userWords), len(responseWords)),
		Clarity:           clarity(assistantResponse),
		Engagement:        engagement(responseLower),
		TechnicalAccuracy: technicalAccuracy(userLower, responseLower),
	}
}

// relevance is the share of distinct user words echoed by the response.
func relevance(userLower, responseLower string) float64 {
	userSet := wordSet(userLower)
	responseSet := wordSet(responseLower)

	overlap := 0
	for w := range userSet {
		if _, ok := responseSet[w]; ok {
			overlap++
		}
	}
	return math.Min(1.0, float64(overlap)/float64(maxInt(len(userSet), 1)))
}

// completeness compares response length with twice the question length (at least 10 words).
func completeness(userWordCount, responseWordCount int) float64 {
	return math.Min(1.0, float64(responseWordCount)/float64(maxInt(userWordCount*2, 10)))
}

// clarity penalizes average sentence lengths above 15 words, sentences split on '.'.
func clarity(response string) float64 {
	sentences := strings.Split(response, ".")
	total := 0
	for _, s := range sentences {
		total += len(strings.Fields(s))
	}
	avg := float64(total) / float64(maxInt(len(sentences), 1))
	return clamp01(1.0 - (avg-15)/20)
}

// engagement counts distinct engagement markers, saturating at three.
func engagement(responseLower string) float64 {
	count := 0
	for _, marker := range engagementMarkers {
		if strings.Contains(responseLower, marker) {
			count++
		}
	}
	return math.Min(1.0, float64(count)/3)
}

// technicalAccuracy is 1.0 unless a technical question got a non-technical answer.
func technicalAccuracy(userLower, responseLower string) float64 {
	techQuestion := containsAny(userLower, technicalTerms)
	techResponse := containsAny(responseLower, technicalTerms)
	if (techQuestion && techResponse) || !techQuestion {
		return 1.0
	}
	return 0.5
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		set[w] = struct{}{}
	}
	return set
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
