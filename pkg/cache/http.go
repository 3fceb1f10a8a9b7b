package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when an upstream sends no freshness
	// headers.
	DefaultTTL = 5 * time.Minute

	// MaxTTL caps upstream-announced lifetimes.
	MaxTTL = 24 * time.Hour
)

// TTLFromHeaders returns how long a response may be cached. Cache-Control
// takes precedence over Expires; no-store, no-cache and private responses
// are not cached.
func TTLFromHeaders(h http.Header, now time.Time) time.Duration {
	if cc := h.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(name) {
			case "no-store", "no-cache", "private":
				return 0
			case "max-age":
				secs, err := strconv.Atoi(strings.Trim(value, `"`))
				if err != nil || secs <= 0 {
					return 0
				}
				return min(time.Duration(secs)*time.Second, MaxTTL)
			}
		}
	}

	if v := h.Get("Expires"); v != "" {
		expires, err := http.ParseTime(v)
		if err != nil {
			return 0
		}
		if !expires.After(now) {
			return 0
		}
		return min(expires.Sub(now), MaxTTL)
	}

	return DefaultTTL
}
