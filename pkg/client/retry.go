package client

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for fetch operations.
var (
	fetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_fetch_attempts_total",
		Help: "Total fetch attempts by source and result class",
	}, []string{"source", "class"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_fetch_retries_total",
		Help: "Total number of retries by source and error class",
	}, []string{"source", "error_class"})

	fetchBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astro_fetch_backoff_seconds",
		Help:    "Backoff duration before retries by source",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	fetchExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_fetch_retry_exhausted_total",
		Help: "Total number of fetches that exhausted their retries by source and error class",
	}, []string{"source", "error_class"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astro_fetch_duration_seconds",
		Help:    "Duration of logical fetches including retries by source",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})
)

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxAttempts is the maximum number of attempts including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; it doubles for
	// every further attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff.
	MaxDelay time.Duration
}

// DefaultOptions returns the default fetch options.
func DefaultOptions() Options {
	return Options{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	return o
}

// Fetcher executes calls with a per-attempt timeout and retries retryable
// failures with exponential backoff and jitter.
type Fetcher struct {
	source string
	opts   Options
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) FetcherOption {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithJitter replaces the jitter source. It must return a value in
// [0, limit).
func WithJitter(jitter func(limit time.Duration) time.Duration) FetcherOption {
	return func(f *Fetcher) { f.jitter = jitter }
}

// NewFetcher creates a fetcher. source labels logs and metrics.
func NewFetcher(source string, opts Options, logger zerolog.Logger, fopts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source: source,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("source", source).Logger(),
		sleep:  sleepContext,
		jitter: randomJitter,
	}
	for _, opt := range fopts {
		opt(f)
	}
	return f
}

// Options returns the effective options.
func (f *Fetcher) Options() Options {
	return f.opts
}

// Backoff returns the wait before the attempt following attempt:
// BaseDelay * 2^(attempt-1) plus jitter in [0, BaseDelay), capped at
// MaxDelay.
func (f *Fetcher) Backoff(attempt int) time.Duration {
	delay := f.opts.BaseDelay << min(attempt-1, 30)
	if delay <= 0 || delay > f.opts.MaxDelay {
		delay = f.opts.MaxDelay
	}
	delay += f.jitter(f.opts.BaseDelay)
	return min(delay, f.opts.MaxDelay)
}

// Execute runs call until it succeeds, fails terminally or exhausts the
// attempt budget. Every failure is returned as a *FetchError.
//
// Cancellation of ctx aborts both in-flight attempts and backoff waits.
func Execute[T any](ctx context.Context, f *Fetcher, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(f.source).Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
		result, err := call(attemptCtx)
		cancel()

		if err == nil {
			fetchAttemptsTotal.WithLabelValues(f.source, "ok").Inc()
			if attempt > 1 {
				f.logger.Info().
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return result, nil
		}

		class := Classify(ctx, err)
		fetchAttemptsTotal.WithLabelValues(f.source, string(class)).Inc()

		status, retryAfter := statusOf(err)
		fetchErr := &FetchError{
			Class:      class,
			StatusCode: status,
			Attempts:   attempt,
			RetryAfter: retryAfter,
			Err:        err,
		}

		if !class.Retryable() {
			f.logTerminal(fetchErr)
			return zero, fetchErr
		}

		if attempt >= f.opts.MaxAttempts {
			fetchErr.Exhausted = true
			fetchErr.RetryAfter = max(fetchErr.RetryAfter, f.Backoff(attempt))
			fetchExhaustedTotal.WithLabelValues(f.source, string(class)).Inc()
			f.logger.Error().
				Err(err).
				Str("error_class", string(class)).
				Int("max_attempts", f.opts.MaxAttempts).
				Msg("Retry attempts exhausted")
			return zero, fetchErr
		}

		delay := f.Backoff(attempt)
		fetchRetriesTotal.WithLabelValues(f.source, string(class)).Inc()
		fetchBackoffSeconds.WithLabelValues(f.source).Observe(delay.Seconds())

		f.logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying fetch after backoff")

		if err := f.sleep(ctx, delay); err != nil {
			f.logger.Debug().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return zero, &FetchError{Class: ClassCancelled, Attempts: attempt, Err: err}
		}
	}
}

func (f *Fetcher) logTerminal(err *FetchError) {
	switch err.Class {
	case ClassCancelled:
		f.logger.Debug().Int("attempt", err.Attempts).Msg("Fetch cancelled")
	case ClassContract:
		f.logger.Error().Err(err.Err).Msg("Upstream contract mismatch")
	case ClassBreakerOpen:
		f.logger.Warn().Msg("Circuit breaker open, fetch rejected")
	default:
		f.logger.Warn().
			Err(err.Err).
			Str("error_class", string(err.Class)).
			Int("status", err.StatusCode).
			Msg("Fetch failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
