package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/astro-gateway/pkg/lrucache"
)

// DefaultFallbackCapacity is the default number of buckets kept in process.
const DefaultFallbackCapacity = 10000

// MemoryWindow is the in-process sliding window used when the coordination
// store is unavailable. Buckets are held in an LRU map so the least recently
// checked identities are dropped first once capacity is reached.
type MemoryWindow struct {
	mu      sync.Mutex
	buckets *lrucache.Cache[string, []time.Time]
}

// NewMemoryWindow creates an in-process window holding at most capacity
// buckets.
func NewMemoryWindow(capacity int) (*MemoryWindow, error) {
	if capacity <= 0 {
		capacity = DefaultFallbackCapacity
	}
	buckets, err := lrucache.New[string, []time.Time](capacity, func(string, []time.Time) {
		fallbackEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	return &MemoryWindow{buckets: buckets}, nil
}

// CheckAndRecord applies the same steps as the Redis script under a mutex.
func (m *MemoryWindow) CheckAndRecord(_ context.Context, req WindowRequest) (WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	markers, _ := m.buckets.Get(req.Key)
	cutoff := req.Now.Add(-req.Window)

	live := markers[:0]
	for _, at := range markers {
		if at.After(cutoff) {
			live = append(live, at)
		}
	}

	burstCutoff := req.Now.Add(-req.BurstWindow)
	burstCount := func() int {
		if !req.hasBurst() {
			return 0
		}
		n := 0
		for _, at := range live {
			if at.After(burstCutoff) {
				n++
			}
		}
		return n
	}

	res := WindowResult{
		Count:      len(live),
		BurstCount: burstCount(),
	}
	if res.Count < req.Limit && (!req.hasBurst() || res.BurstCount < req.BurstLimit) {
		live = append(live, req.Now)
		res.Allowed = true
		res.Count++
		if req.hasBurst() {
			res.BurstCount++
		}
	}

	if len(live) > 0 {
		res.Oldest = live[0]
		if req.hasBurst() {
			for _, at := range live {
				if at.After(burstCutoff) {
					res.OldestBurst = at
					break
				}
			}
		}
	}

	m.buckets.Put(req.Key, live)
	return res, nil
}

// Len returns the number of tracked buckets.
func (m *MemoryWindow) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buckets.Len()
}
