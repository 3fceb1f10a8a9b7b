package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// WriteHeaders sets rate limit response headers for d. The legacy
// X-RateLimit-Reset carries epoch milliseconds, the RateLimit-* set
// carries seconds until reset. Retry-After is only set on rejections.
func WriteHeaders(h http.Header, d Decision, now time.Time) {
	limit := strconv.Itoa(d.EffectiveLimit)
	remaining := strconv.Itoa(d.Remaining)

	h.Set("X-RateLimit-Limit", limit)
	h.Set("X-RateLimit-Remaining", remaining)
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))

	h.Set("RateLimit-Limit", limit)
	h.Set("RateLimit-Remaining", remaining)
	h.Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(d.ResetAt.Sub(now))))
	h.Set("RateLimit-Policy", limit+";w="+strconv.Itoa(ceilSeconds(d.Window)))

	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(max(ceilSeconds(d.RetryAfter), 1)))
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
