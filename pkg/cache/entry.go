package cache

import (
	"time"
)

// CacheEntry represents a cached upstream result.
type CacheEntry struct {
	// Data is the serialized result.
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`

	// Source records which strategy produced the data.
	Source string `json:"source,omitempty"`
}

// NewEntry creates an entry expiring ttl after now.
func NewEntry(data []byte, ttl time.Duration, now time.Time) *CacheEntry {
	return &CacheEntry{
		Data:     data,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
