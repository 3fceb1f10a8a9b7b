package client

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "astro_search_fallback_total",
	Help: "Searches by strategy outcome (primary, secondary, degraded, failed, cancelled)",
}, []string{"search", "outcome"})

// Outcome records which stage produced a search result.
type Outcome string

const (
	OutcomePrimary   Outcome = "primary"
	OutcomeSecondary Outcome = "secondary"

	// OutcomeDegraded is an empty result returned because both stages hit
	// a contract mismatch.
	OutcomeDegraded Outcome = "degraded"
)

// Strategy is one way of running a search.
type Strategy[T any] func(ctx context.Context) (T, error)

// FallbackSearch runs a comprehensive primary strategy and falls back to a
// narrower secondary one when the primary's contract is broken or its
// upstream is unavailable.
type FallbackSearch[T any] struct {
	name      string
	primary   Strategy[T]
	secondary Strategy[T]
	logger    zerolog.Logger
}

// NewFallbackSearch composes two strategies.
func NewFallbackSearch[T any](name string, primary, secondary Strategy[T], logger zerolog.Logger) *FallbackSearch[T] {
	return &FallbackSearch[T]{
		name:      name,
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("search", name).Logger(),
	}
}

// Search runs the strategies.
//
// Cancellation at either stage is returned immediately. When the secondary
// fails with a contract mismatch the zero value is returned with a nil
// error. When it fails for any other reason the primary's error is
// returned.
func (s *FallbackSearch[T]) Search(ctx context.Context) (T, Outcome, error) {
	var zero T

	result, primaryErr := s.primary(ctx)
	if primaryErr == nil {
		fallbackTotal.WithLabelValues(s.name, string(OutcomePrimary)).Inc()
		return result, OutcomePrimary, nil
	}
	if cancelled(ctx, primaryErr) {
		fallbackTotal.WithLabelValues(s.name, "cancelled").Inc()
		return zero, "", primaryErr
	}
	if !shouldFallback(primaryErr) {
		fallbackTotal.WithLabelValues(s.name, "failed").Inc()
		return zero, "", primaryErr
	}

	if IsContractMismatch(primaryErr) {
		s.logger.Error().Err(primaryErr).Msg("Primary search contract mismatch, falling back")
	} else {
		s.logger.Warn().Err(primaryErr).Msg("Primary search unavailable, falling back")
	}

	result, secondaryErr := s.secondary(ctx)
	if secondaryErr == nil {
		fallbackTotal.WithLabelValues(s.name, string(OutcomeSecondary)).Inc()
		return result, OutcomeSecondary, nil
	}
	if cancelled(ctx, secondaryErr) {
		fallbackTotal.WithLabelValues(s.name, "cancelled").Inc()
		return zero, "", secondaryErr
	}
	if IsContractMismatch(secondaryErr) {
		fallbackTotal.WithLabelValues(s.name, string(OutcomeDegraded)).Inc()
		s.logger.Error().
			Err(secondaryErr).
			Msg("Secondary search contract mismatch, returning empty result")
		return zero, OutcomeDegraded, nil
	}

	// TODO: wrap both errors once callers can render a combined diagnostic.
	fallbackTotal.WithLabelValues(s.name, "failed").Inc()
	s.logger.Warn().
		Err(secondaryErr).
		Msg("Secondary search failed, reporting primary error")
	return zero, "", primaryErr
}

func shouldFallback(err error) bool {
	return errors.Is(err, ErrContractMismatch) || errors.Is(err, ErrUpstreamUnavailable)
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled)
}
