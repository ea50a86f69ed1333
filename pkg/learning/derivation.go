package learning

import (
	"context"
	"errors"

	"github.com/nexus-ai/nexus-go/pkg/storage"
)

// SuccessRateDeriver fills in SuccessRate and UsageCount on a pattern that is
// about to be written.
//
// Implementations must derive both values from the store contents and the
// current feedback only.
type SuccessRateDeriver interface {
	Derive(ctx context.Context, store storage.Store, pattern *storage.Pattern, feedback storage.Feedback) error
}

// ObservedDeriver leaves every pattern at success rate 0.0 and usage count 0.
//
// Each write therefore resets the counters, so no pattern ever crosses
// SuccessThreshold and the prompt adapter stays silent.
type ObservedDeriver struct{}

// Derive implements SuccessRateDeriver.
func (ObservedDeriver) Derive(_ context.Context, _ storage.Store, pattern *storage.Pattern, _ storage.Feedback) error {
	pattern.SuccessRate = 0.0
	pattern.UsageCount = 0
	return nil
}

// FeedbackDeriver keeps a running positive-feedback ratio per pattern key.
//
// usage_count is the previous count plus one; success_rate is the share of
// those writes that carried positive feedback.
type FeedbackDeriver struct{}

// Derive implements SuccessRateDeriver.
func (FeedbackDeriver) Derive(ctx context.Context, store storage.Store, pattern *storage.Pattern, feedback storage.Feedback) error {
	var (
		prevRate  float64
		prevCount int
	)

	prev, err := store.GetPattern(ctx, pattern.Type, pattern.Key())
	switch {
	case err == nil:
		prevRate, prevCount = prev.SuccessRate, prev.UsageCount
	case errors.Is(err, storage.ErrNotFound):
	default:
		return err
	}

	positive := 0.0
	if feedback == storage.FeedbackPositive {
		positive = 1.0
	}

	pattern.UsageCount = prevCount + 1
	pattern.SuccessRate = (prevRate*float64(prevCount) + positive) / float64(pattern.UsageCount)
	return nil
}

// DeriverByName maps a configuration value to a deriver: "feedback" selects
// FeedbackDeriver, anything else ObservedDeriver.
func DeriverByName(name string) SuccessRateDeriver {
	if name == "feedback" {
		return FeedbackDeriver{}
	}
	return ObservedDeriver{}
}
