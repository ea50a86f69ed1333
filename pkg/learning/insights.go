package learning

import (
	"strings"
	"unicode/utf8"
)

// topicRule attaches a topic when any keyword occurs in the user text.
type topicRule struct {
	topic    string
	keywords []string
}

// topicTable is evaluated in order; a message may match several topics.
var topicTable = []topicRule{
	{topic: "programming", keywords: []string{"code", "function", "python", "javascript", "algorithm", "debug"}},
	{topic: "science", keywords: []string{"research", "experiment", "hypothesis", "data", "analysis"}},
	{topic: "creative", keywords: []string{"write", "poem", "story", "creative", "art", "design"}},
	{topic: "technical", keywords: []string{"system", "network", "server", "database", "api"}},
	{topic: "learning", keywords: []string{"learn", "understand", "explain", "teach", "how"}},
}

// adapterTopicTable is the table the prompt adapter matches user input
// against. "debug", "hypothesis", "design" and "api" tag a turn but never
// select an adaptation.
var adapterTopicTable = []topicRule{
	{topic: "programming", keywords: []string{"code", "function", "python", "javascript", "algorithm"}},
	{topic: "science", keywords: []string{"research", "experiment", "data", "analysis"}},
	{topic: "creative", keywords: []string{"write", "poem", "story", "creative", "art"}},
	{topic: "technical", keywords: []string{"system", "network", "server", "database"}},
}

var (
	helpWords     = []string{"help", "assist", "support"}
	creationWords = []string{"create", "make", "build"}
	casualMarkers = []string{"!", "?", "..."}
)

// detailedThreshold is the response length (in characters) above which a reply is "detailed".
const detailedThreshold = 200

// InsightExtractor tags topics, infers intent and labels response style.
//
// All three classifiers are first-match keyword rules with a fixed precedence.
type InsightExtractor struct{}

// NewInsightExtractor creates a new insight extractor.
func NewInsightExtractor() *InsightExtractor {
	return &InsightExtractor{}
}

// Extract classifies a turn.
func (e *InsightExtractor) Extract(userInput, assistantResponse string) Insights {
	return Insights{
		Topics:        ExtractTopics(userInput),
		UserIntent:    ClassifyIntent(userInput),
		ResponseStyle: ClassifyStyle(assistantResponse),
	}
}

// ExtractTopics returns every topic whose keywords occur in text, in table order.
// Matching is a case-insensitive substring test.
func ExtractTopics(text string) []string {
	return matchTopics(topicTable, text)
}

// adapterTopics returns the topics of text the prompt adapter can act on.
func adapterTopics(text string) []string {
	return matchTopics(adapterTopicTable, text)
}

func matchTopics(table []topicRule, text string) []string {
	lower := strings.ToLower(text)
	topics := []string{}
	for _, rule := range table {
		if containsAny(lower, rule.keywords) {
			topics = append(topics, rule.topic)
		}
	}
	return topics
}

// ClassifyIntent applies: '?' -> question, help word -> help_request,
// creation word -> creation_request, otherwise general_interaction.
func ClassifyIntent(userInput string) Intent {
	lower := strings.ToLower(userInput)
	switch {
	case strings.Contains(userInput, "?"):
		return IntentQuestion
	case containsAny(lower, helpWords):
		return IntentHelpRequest
	case containsAny(lower, creationWords):
		return IntentCreationRequest
	default:
		return IntentGeneralInteraction
	}
}

// ClassifyStyle applies: >200 characters -> detailed, code fence -> code_focused,
// '!', '?' or '...' -> conversational, otherwise concise.
func ClassifyStyle(response string) Style {
	switch {
	case utf8.RuneCountInString(response) > detailedThreshold:
		return StyleDetailed
	case strings.Contains(response, "```"):
		return StyleCodeFocused
	case containsAny(response, casualMarkers):
		return StyleConversational
	default:
		return StyleConcise
	}
}
