package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addressClient     = ClientIdentity{ID: "ip:203.0.113.7", Confidence: ConfidenceAddress}
	fingerprintClient = ClientIdentity{ID: "fp:0011223344556677", Confidence: ConfidenceFingerprint}
	unknownClient     = ClientIdentity{ID: UnknownID, Confidence: ConfidenceUnknown}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, store StoreHandle, policies map[LimitType]Policy, clock *testClock) *Limiter {
	t.Helper()
	fallback, err := NewMemoryWindow(16)
	require.NoError(t, err)
	l, err := NewLimiter(store, fallback, policies, WithClock(clock.Now))
	require.NoError(t, err)
	return l
}

func TestLimiter_SustainedWindow(t *testing.T) {
	clock := newTestClock()
	l := newTestLimiter(t, Unavailable("test"), map[LimitType]Policy{
		LimitBrowse: {Limit: 4, Window: time.Minute},
	}, clock)
	ctx := context.Background()
	start := clock.Now()

	for i := 0; i < 4; i++ {
		d, err := l.Check(ctx, addressClient, LimitBrowse)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 3-i, d.Remaining)
		assert.Equal(t, start.Add(time.Minute), d.ResetAt)
		clock.Advance(time.Second)
	}

	d, err := l.Check(ctx, addressClient, LimitBrowse)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 56*time.Second, d.RetryAfter)
	assert.ErrorIs(t, d.Err(), ErrQuotaExceeded)

	// The oldest marker leaves the window exactly one window after it was
	// recorded, which frees one slot.
	clock.Advance(56 * time.Second)
	d, err = l.Check(ctx, addressClient, LimitBrowse)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Check(ctx, addressClient, LimitBrowse)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLimiter_BurstPrecedence(t *testing.T) {
	clock := newTestClock()
	l := newTestLimiter(t, Unavailable("test"), map[LimitType]Policy{
		LimitSearch: {Limit: 100, Window: time.Minute, BurstLimit: 5, BurstWindow: 10 * time.Second},
	}, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, addressClient, LimitSearch)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
		clock.Advance(400 * time.Millisecond)
	}

	d, err := l.Check(ctx, addressClient, LimitSearch)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.BurstLimited)
	assert.Equal(t, 8*time.Second, d.RetryAfter)

	clock.Advance(8 * time.Second)
	d, err = l.Check(ctx, addressClient, LimitSearch)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_ConfidenceScaling(t *testing.T) {
	l := newTestLimiter(t, Unavailable("test"), map[LimitType]Policy{
		LimitSearch: {Limit: 60, Window: time.Minute},
	}, newTestClock())

	address, err := l.EffectiveLimit(LimitSearch, ConfidenceAddress)
	require.NoError(t, err)
	fingerprint, err := l.EffectiveLimit(LimitSearch, ConfidenceFingerprint)
	require.NoError(t, err)
	unknown, err := l.EffectiveLimit(LimitSearch, ConfidenceUnknown)
	require.NoError(t, err)

	assert.Equal(t, 60, address)
	assert.Less(t, fingerprint, address)
	assert.Less(t, unknown, fingerprint)
}

func TestPolicy_EffectiveStrictlyDecreasing(t *testing.T) {
	assert.Equal(t, ConfidenceUnknown.Divisor(), MinLimit)

	for limit := MinLimit; limit <= 64; limit++ {
		p := Policy{Limit: limit, Window: time.Minute, BurstLimit: limit, BurstWindow: time.Second}
		require.NoError(t, p.Validate())

		address := p.Effective(ConfidenceAddress)
		fingerprint := p.Effective(ConfidenceFingerprint)
		unknown := p.Effective(ConfidenceUnknown)

		assert.Equal(t, limit, address.Limit)
		assert.Less(t, fingerprint.Limit, address.Limit, "limit %d", limit)
		assert.Less(t, unknown.Limit, fingerprint.Limit, "limit %d", limit)
		assert.Less(t, unknown.BurstLimit, fingerprint.BurstLimit, "burst %d", limit)
		assert.Positive(t, unknown.Limit)
	}
}

func TestPolicy_ValidateRejectsFlatScaling(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"limit one", Policy{Limit: 1, Window: time.Minute}},
		{"limit below floor", Policy{Limit: MinLimit - 1, Window: time.Minute}},
		{"burst below floor", Policy{Limit: 10, Window: time.Minute, BurstLimit: MinLimit - 1, BurstWindow: time.Second}},
		{"no window", Policy{Limit: 10}},
		{"negative burst", Policy{Limit: 10, Window: time.Minute, BurstLimit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.policy.Validate())
		})
	}
	assert.NoError(t, Policy{Limit: MinLimit, Window: time.Minute}.Validate())
}

func TestLimiter_UnknownIdentityThrottledHarder(t *testing.T) {
	l := newTestLimiter(t, Unavailable("test"), map[LimitType]Policy{
		LimitFeed: {Limit: 8, Window: time.Minute},
	}, newTestClock())
	ctx := context.Background()

	allowed := func(id ClientIdentity) int {
		n := 0
		for i := 0; i < 10; i++ {
			d, err := l.Check(ctx, id, LimitFeed)
			require.NoError(t, err)
			if d.Allowed {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 8, allowed(addressClient))
	assert.Equal(t, 4, allowed(fingerprintClient))
	assert.Equal(t, 2, allowed(unknownClient))
}

func TestLimiter_BucketsAreIndependent(t *testing.T) {
	l := newTestLimiter(t, Unavailable("test"), map[LimitType]Policy{
		LimitBrowse: {Limit: MinLimit, Window: time.Minute},
		LimitSearch: {Limit: MinLimit, Window: time.Minute},
	}, newTestClock())
	ctx := context.Background()

	for _, lt := range []LimitType{LimitBrowse, LimitSearch} {
		d, err := l.Check(ctx, addressClient, lt)
		require.NoError(t, err)
		assert.True(t, d.Allowed, string(lt))
	}

	other := ClientIdentity{ID: "ip:198.51.100.1", Confidence: ConfidenceAddress}
	d, err := l.Check(ctx, other, LimitBrowse)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_UnknownLimitType(t *testing.T) {
	l := newTestLimiter(t, Unavailable("test"), DefaultPolicies(), newTestClock())

	_, err := l.Check(context.Background(), addressClient, LimitType("admin"))
	assert.ErrorIs(t, err, ErrUnknownLimitType)
}

type recordingStore struct {
	err      error
	requests []WindowRequest
}

func (s *recordingStore) CheckAndRecord(_ context.Context, req WindowRequest) (WindowResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return WindowResult{}, s.err
	}
	return WindowResult{Allowed: true, Count: 1, Oldest: req.Now}, nil
}

func TestLimiter_UsesStore(t *testing.T) {
	store := &recordingStore{}
	clock := newTestClock()
	l := newTestLimiter(t, Connected(store), map[LimitType]Policy{
		LimitSearch: {Limit: 10, Window: time.Minute, BurstLimit: 4, BurstWindow: 5 * time.Second},
	}, clock)

	d, err := l.Check(context.Background(), fingerprintClient, LimitSearch)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, BackendStore, d.Backend)
	assert.Equal(t, 5, d.EffectiveLimit)
	assert.Equal(t, 4, d.Remaining)

	require.Len(t, store.requests, 1)
	assert.Equal(t, WindowRequest{
		Key:         "ratelimit:search:fp:0011223344556677",
		Now:         clock.Now(),
		Limit:       5,
		Window:      time.Minute,
		BurstLimit:  2,
		BurstWindow: 5 * time.Second,
	}, store.requests[0])
}

func TestLimiter_FallsBackWhenStoreFails(t *testing.T) {
	store := &recordingStore{err: ErrStoreUnavailable}
	l := newTestLimiter(t, Connected(store), map[LimitType]Policy{
		LimitBrowse: {Limit: 4, Window: time.Minute},
	}, newTestClock())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		d, err := l.Check(ctx, addressClient, LimitBrowse)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, BackendMemory, d.Backend)
	}

	d, err := l.Check(ctx, addressClient, LimitBrowse)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Len(t, store.requests, 5)
}

func TestLimiter_CancelledStoreCallPropagates(t *testing.T) {
	store := &recordingStore{err: context.Canceled}
	l := newTestLimiter(t, Connected(store), DefaultPolicies(), newTestClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Check(ctx, addressClient, LimitBrowse)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewLimiter_Validation(t *testing.T) {
	fallback, err := NewMemoryWindow(4)
	require.NoError(t, err)

	_, err = NewLimiter(Unavailable("test"), nil, DefaultPolicies())
	assert.Error(t, err)

	_, err = NewLimiter(Unavailable("test"), fallback, map[LimitType]Policy{LimitBrowse: {Limit: 0, Window: time.Minute}})
	assert.Error(t, err)

	_, err = NewLimiter(Unavailable("test"), fallback, map[LimitType]Policy{LimitBrowse: {Limit: 5, Window: time.Minute, BurstLimit: 4}})
	assert.Error(t, err)

	_, err = NewLimiter(Unavailable("test"), fallback, map[LimitType]Policy{LimitBrowse: {Limit: 3, Window: time.Minute}})
	assert.Error(t, err)

	_, err = NewLimiter(Unavailable("test"), fallback, map[LimitType]Policy{LimitBrowse: {Limit: 4, Window: time.Minute}})
	assert.NoError(t, err)
}

func TestStoreHandle(t *testing.T) {
	_, ok := Unavailable("redis disabled").Available()
	assert.False(t, ok)
	assert.Equal(t, "redis disabled", Unavailable("redis disabled").Reason())

	_, ok = Connected(nil).Available()
	assert.False(t, ok)

	_, ok = Connected(&recordingStore{}).Available()
	assert.True(t, ok)
}

func TestMemoryWindow_BoundedBuckets(t *testing.T) {
	m, err := NewMemoryWindow(2)
	require.NoError(t, err)
	now := time.Now()

	for _, key := range []string{"a", "b", "c"} {
		_, err := m.CheckAndRecord(context.Background(), WindowRequest{Key: key, Now: now, Limit: 1, Window: time.Minute})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Len())

	// a was evicted, so its quota starts over.
	res, err := m.CheckAndRecord(context.Background(), WindowRequest{Key: "a", Now: now, Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestWriteHeaders(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("allowed", func(t *testing.T) {
		h := http.Header{}
		WriteHeaders(h, Decision{
			Allowed:        true,
			Remaining:      41,
			EffectiveLimit: 60,
			Window:         time.Minute,
			ResetAt:        now.Add(30 * time.Second),
		}, now)

		assert.Equal(t, "60", h.Get("X-RateLimit-Limit"))
		assert.Equal(t, "41", h.Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1709294430000", h.Get("X-RateLimit-Reset"))
		assert.Equal(t, "60", h.Get("RateLimit-Limit"))
		assert.Equal(t, "41", h.Get("RateLimit-Remaining"))
		assert.Equal(t, "30", h.Get("RateLimit-Reset"))
		assert.Equal(t, "60;w=60", h.Get("RateLimit-Policy"))
		assert.Empty(t, h.Get("Retry-After"))
	})

	t.Run("rejected", func(t *testing.T) {
		h := http.Header{}
		WriteHeaders(h, Decision{
			EffectiveLimit: 15,
			Window:         time.Minute,
			ResetAt:        now.Add(1500 * time.Millisecond),
			RetryAfter:     1500 * time.Millisecond,
		}, now)

		assert.Equal(t, "0", h.Get("RateLimit-Remaining"))
		assert.Equal(t, "2", h.Get("RateLimit-Reset"))
		assert.Equal(t, "2", h.Get("Retry-After"))
	})
}
