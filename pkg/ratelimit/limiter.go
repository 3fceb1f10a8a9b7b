package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrQuotaExceeded marks a rejected request.
var ErrQuotaExceeded = errors.New("rate limit exceeded")

// ErrUnknownLimitType is returned for limit types without a policy.
var ErrUnknownLimitType = errors.New("unknown limit type")

// LimitType is an endpoint class with its own quota.
type LimitType string

const (
	LimitBrowse LimitType = "browse"
	LimitSearch LimitType = "search"
	LimitFeed   LimitType = "feed"
)

// Backend names the window implementation that served a decision.
type Backend string

const (
	BackendStore  Backend = "store"
	BackendMemory Backend = "memory"
)

// Policy is the nominal quota of a limit type.
type Policy struct {
	Limit  int
	Window time.Duration

	// BurstLimit of zero disables the burst window.
	BurstLimit  int
	BurstWindow time.Duration
}

// MinLimit is the smallest nominal limit that still scales to three
// distinct effective limits. It equals the unknown identity divisor.
const MinLimit = 4

// Validate reports whether the policy can be enforced and scaled.
func (p Policy) Validate() error {
	switch {
	case p.Limit < MinLimit:
		return fmt.Errorf("limit must be at least %d", MinLimit)
	case p.Window <= 0:
		return errors.New("window must be positive")
	case p.BurstLimit < 0:
		return errors.New("burst limit must not be negative")
	case p.BurstLimit > 0 && p.BurstLimit < MinLimit:
		return fmt.Errorf("burst limit must be zero or at least %d", MinLimit)
	case p.BurstLimit > 0 && p.BurstWindow <= 0:
		return errors.New("burst window must be positive")
	}
	return nil
}

// DefaultPolicies returns the built-in quotas.
func DefaultPolicies() map[LimitType]Policy {
	return map[LimitType]Policy{
		LimitBrowse: {Limit: 120, Window: time.Minute, BurstLimit: 20, BurstWindow: 5 * time.Second},
		LimitSearch: {Limit: 60, Window: time.Minute, BurstLimit: 10, BurstWindow: 5 * time.Second},
		LimitFeed:   {Limit: 30, Window: time.Minute},
	}
}

// Effective scales the policy for an identity confidence. Validated
// policies yield strictly decreasing limits from address to fingerprint to
// unknown identities.
func (p Policy) Effective(c Confidence) Policy {
	d := c.Divisor()
	p.Limit = max(p.Limit/d, 1)
	if p.BurstLimit > 0 {
		p.BurstLimit = max(p.BurstLimit/d, 1)
	}
	return p
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed        bool
	Remaining      int
	ResetAt        time.Time
	EffectiveLimit int
	Window         time.Duration

	// RetryAfter is set on rejected decisions.
	RetryAfter time.Duration

	// BurstLimited is true when the burst window caused the rejection.
	BurstLimited bool

	Backend Backend
}

// Err returns ErrQuotaExceeded for rejected decisions.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrQuotaExceeded
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the limiter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// Limiter enforces sustained and burst quotas per identity and limit type.
type Limiter struct {
	store    StoreHandle
	fallback *MemoryWindow
	policies map[LimitType]Policy
	now      func() time.Time
	logger   zerolog.Logger
}

// NewLimiter creates a limiter. The fallback window serves every check when
// store is unavailable and any check whose store call fails.
func NewLimiter(store StoreHandle, fallback *MemoryWindow, policies map[LimitType]Policy, opts ...Option) (*Limiter, error) {
	if fallback == nil {
		return nil, errors.New("fallback window is required")
	}
	for lt, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy for %s: %w", lt, err)
		}
	}

	l := &Limiter{
		store:    store,
		fallback: fallback,
		policies: policies,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if _, ok := store.Available(); !ok {
		l.logger.Warn().
			Str("reason", store.Reason()).
			Msg("Coordination store unavailable, rate limits are per process")
	}
	return l, nil
}

// EffectiveLimit returns the sustained limit that applies to an identity of
// confidence c for lt.
func (l *Limiter) EffectiveLimit(lt LimitType, c Confidence) (int, error) {
	p, ok := l.policies[lt]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLimitType, lt)
	}
	return p.Effective(c).Limit, nil
}

// Check records a request for id under lt and reports whether it is
// allowed. Store failures fall back to the in-process window; only context
// cancellation and unknown limit types return an error.
func (l *Limiter) Check(ctx context.Context, id ClientIdentity, lt LimitType) (Decision, error) {
	policy, ok := l.policies[lt]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownLimitType, lt)
	}
	eff := policy.Effective(id.Confidence)

	req := WindowRequest{
		Key:         bucketKey(lt, id),
		Now:         l.now(),
		Limit:       eff.Limit,
		Window:      eff.Window,
		BurstLimit:  eff.BurstLimit,
		BurstWindow: eff.BurstWindow,
	}

	res, backend, err := l.record(ctx, req)
	if err != nil {
		return Decision{}, err
	}

	d := decide(req, res)
	d.Backend = backend

	outcome := "allowed"
	if !d.Allowed {
		outcome = "rejected"
		l.logger.Debug().
			Str("client", id.ID).
			Str("confidence", string(id.Confidence)).
			Str("limit_type", string(lt)).
			Int("effective_limit", d.EffectiveLimit).
			Bool("burst", d.BurstLimited).
			Msg("Request rejected by rate limit")
	}
	decisionsTotal.WithLabelValues(string(lt), outcome, string(backend)).Inc()

	return d, nil
}

func (l *Limiter) record(ctx context.Context, req WindowRequest) (WindowResult, Backend, error) {
	if store, ok := l.store.Available(); ok {
		res, err := store.CheckAndRecord(ctx, req)
		if err == nil {
			return res, BackendStore, nil
		}
		if ctx.Err() != nil {
			return WindowResult{}, BackendStore, ctx.Err()
		}
		storeFallbacksTotal.Inc()
		l.logger.Warn().
			Err(err).
			Str("key", req.Key).
			Msg("Rate limit store failed, using in-process window")
	}

	res, err := l.fallback.CheckAndRecord(ctx, req)
	return res, BackendMemory, err
}

func bucketKey(lt LimitType, id ClientIdentity) string {
	return "ratelimit:" + string(lt) + ":" + id.ID
}

func decide(req WindowRequest, res WindowResult) Decision {
	d := Decision{
		Allowed:        res.Allowed,
		Remaining:      max(req.Limit-res.Count, 0),
		EffectiveLimit: req.Limit,
		Window:         req.Window,
		ResetAt:        req.Now.Add(req.Window),
	}
	if !res.Oldest.IsZero() {
		d.ResetAt = res.Oldest.Add(req.Window)
	}
	if d.Allowed {
		return d
	}

	d.Remaining = 0
	var wait time.Duration
	if res.Count >= req.Limit {
		wait = d.ResetAt.Sub(req.Now)
	}
	if req.hasBurst() && res.BurstCount >= req.BurstLimit && !res.OldestBurst.IsZero() {
		d.BurstLimited = true
		wait = max(wait, res.OldestBurst.Add(req.BurstWindow).Sub(req.Now))
	}
	d.RetryAfter = max(wait, 0)
	return d
}
