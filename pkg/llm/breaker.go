package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds the configuration for the provider circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxRequests is the number of trial requests allowed while half-open.
	// Default: 1
	HalfOpenMaxRequests uint32

	// Logger receives state transitions. Default: slog.Default()
	Logger *slog.Logger
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests == 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Breaker wraps a Provider with a circuit breaker.
//
// After MaxFailures consecutive failures the circuit opens and calls fail
// fast with ErrProviderUnavailable until Timeout has elapsed. Invalid
// settings are rejected before the circuit is consulted and never count
// as failures.
type Breaker struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Provider, cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	logger := cfg.Logger

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit state changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GenerateWithMessages implements Provider.
func (b *Breaker) GenerateWithMessages(ctx context.Context, messages []Message, settings Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return b.next.GenerateWithMessages(ctx, messages, settings)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, b.next.Name(), err)
		}
		return "", err
	}
	return result.(string), nil
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

// Name implements Provider.
func (b *Breaker) Name() string { return b.next.Name() }

// Model implements Provider.
func (b *Breaker) Model() string { return b.next.Model() }

// Close implements Provider.
func (b *Breaker) Close() error { return b.next.Close() }
