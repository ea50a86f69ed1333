package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// AdaptationsHeading opens the block appended to the system prompt.
const AdaptationsHeading = "\n\nLearned Adaptations:\n"

const (
	defaultTopicStyle     = string(StyleDetailed)
	defaultPreferredStyle = string(StyleConversational)
)

// PromptAdapter derives one-turn system prompt additions from stored patterns.
//
// The adapter holds no pattern cache: every Enhance call reads the store, so
// results are never staler than the last committed write.
type PromptAdapter struct {
	store storage.Store
}

// NewPromptAdapter creates an adapter reading from store.
func NewPromptAdapter(store storage.Store) *PromptAdapter {
	return &PromptAdapter{store: store}
}

// Enhance returns basePrompt followed by the learned adaptations for userInput.
//
// For every topic the adapter's keyword table finds in userInput, the topic_expertise pattern
// with the highest success rate above SuccessThreshold contributes its
// response style. The best response_quality pattern above the threshold
// contributes a preferred style. The heading is always appended, even when
// no line follows it. The store is never written.
func (a *PromptAdapter) Enhance(ctx context.Context, userInput, basePrompt string) (string, error) {
	topicPatterns, err := a.store.GetPatterns(ctx, storage.PatternTopicExpertise)
	if err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}
	stylePatterns, err := a.store.GetPatterns(ctx, storage.PatternResponseQuality)
	if err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString(AdaptationsHeading)

	for _, topic := range adapterTopics(userInput) {
		best := bestPattern(topicPatterns, func(p *storage.Pattern) bool {
			return p.Payload.Topic == topic
		})
		if best == nil {
			continue
		}
		fmt.Fprintf(&b, "- For %s topics: Use %s style\n", topic, orDefault(best.Payload.ResponseStyle, defaultTopicStyle))
	}

	if best := bestPattern(stylePatterns, nil); best != nil {
		fmt.Fprintf(&b, "- Preferred response style: %s\n", orDefault(best.Payload.Style, defaultPreferredStyle))
	}

	return b.String(), nil
}

// bestPattern returns the first pattern with the highest success rate above
// SuccessThreshold among those accepted by match (nil accepts all).
func bestPattern(patterns []*storage.Pattern, match func(*storage.Pattern) bool) *storage.Pattern {
	var best *storage.Pattern
	for _, p := range patterns {
		if p.SuccessRate <= SuccessThreshold {
			continue
		}
		if match != nil && !match(p) {
			continue
		}
		if best == nil || p.SuccessRate > best.SuccessRate {
			best = p
		}
	}
	return best
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
