package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned by window checks whose backing store
// cannot be reached.
var ErrStoreUnavailable = errors.New("coordination store unavailable")

// WindowRequest is one check-and-record step against a keyed bucket.
type WindowRequest struct {
	Key string
	Now time.Time

	Limit  int
	Window time.Duration

	// BurstLimit of zero disables the burst window.
	BurstLimit  int
	BurstWindow time.Duration
}

func (r WindowRequest) hasBurst() bool {
	return r.BurstLimit > 0 && r.BurstWindow > 0
}

// WindowResult reports the bucket after the step.
type WindowResult struct {
	Allowed bool

	// Count and BurstCount include the marker recorded by this step.
	Count      int
	BurstCount int

	// Oldest is the earliest marker in the sustained window and
	// OldestBurst the earliest in the burst window; zero when empty.
	Oldest      time.Time
	OldestBurst time.Time
}

// AtomicWindowCheck performs one sliding-window step as a single
// indivisible operation: evict markers older than the sustained window,
// count the sustained and burst windows, decide, record a marker only when
// allowed, refresh the bucket TTL to the sustained window and return the
// counts.
type AtomicWindowCheck interface {
	CheckAndRecord(ctx context.Context, req WindowRequest) (WindowResult, error)
}

// StoreHandle is the coordination store as seen by the Limiter: either a
// connected AtomicWindowCheck or an explicit unavailable state.
type StoreHandle struct {
	check  AtomicWindowCheck
	reason string
}

// Connected wraps a usable store.
func Connected(check AtomicWindowCheck) StoreHandle {
	if check == nil {
		return Unavailable("no store configured")
	}
	return StoreHandle{check: check}
}

// Unavailable records why no shared store is in use.
func Unavailable(reason string) StoreHandle {
	return StoreHandle{reason: reason}
}

// Available returns the store when connected.
func (h StoreHandle) Available() (AtomicWindowCheck, bool) {
	return h.check, h.check != nil
}

// Reason explains an unavailable handle.
func (h StoreHandle) Reason() string {
	return h.reason
}
