package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_ratelimit_decisions_total",
		Help: "Rate limit decisions by limit type, outcome and backend",
	}, []string{"limit_type", "outcome", "backend"})

	storeFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_ratelimit_store_fallbacks_total",
		Help: "Checks served by the in-process window because the coordination store failed",
	})

	fallbackEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_ratelimit_fallback_evictions_total",
		Help: "Buckets evicted from the in-process window",
	})
)
