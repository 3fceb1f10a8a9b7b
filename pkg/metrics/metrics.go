// Package metrics exposes the Prometheus registry and HTTP surface metrics
// of the gateway. Domain metrics are defined in their respective packages
// (client, cache, ratelimit, pagination) to avoid circular dependencies.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all gateway metrics use.
// Metrics are registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

var (
	// HTTPRequests counts served requests by route pattern and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_http_requests_total",
			Help: "Total HTTP requests served by route and status",
		},
		[]string{"route", "status"},
	)

	// HTTPDuration observes request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astro_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// ObserveRequest records one served request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - astro_http_requests_total{route, status} (Counter)
//   - astro_http_request_duration_seconds{route} (Histogram)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - astro_ratelimit_decisions_total{limit_type, outcome, backend} (Counter)
//   - astro_ratelimit_store_fallbacks_total (Counter): checks served in memory after a store error
//   - astro_ratelimit_fallback_evictions_total (Counter): in-memory buckets evicted at capacity
//
// Cache Metrics (pkg/cache):
//   - astro_cache_hits_total{namespace} (Counter)
//   - astro_cache_misses_total{namespace} (Counter)
//   - astro_cache_errors_total{operation} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - astro_cursor_rejections_total{reason} (Counter)
//   - astro_pages_served_total{mode} (Counter)
//   - astro_feed_pages_fetched_total{outcome} (Counter)
//
// Upstream Metrics (pkg/client):
//   - astro_upstream_requests_total{source, status} (Counter)
//   - astro_upstream_request_duration_seconds{source} (Histogram)
//   - astro_upstream_breaker_state{source} (Gauge): 0 closed, 1 half-open, 2 open
//   - astro_fetch_attempts_total{source, class} (Counter)
//   - astro_fetch_retries_total{source, error_class} (Counter)
//   - astro_fetch_backoff_seconds{source} (Histogram)
//   - astro_fetch_retry_exhausted_total{source, error_class} (Counter)
//   - astro_fetch_duration_seconds{source} (Histogram)
//   - astro_search_fallback_total{search, outcome} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(astro_cache_hits_total[5m])) /
//   (sum(rate(astro_cache_hits_total[5m])) + sum(rate(astro_cache_misses_total[5m])))
//
//   # Share of rate limit checks served without the store
//   rate(astro_ratelimit_store_fallbacks_total[5m])
//
//   # Secondary search usage
//   sum by (search) (rate(astro_search_fallback_total{outcome="secondary"}[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(astro_upstream_request_duration_seconds_bucket[5m]))
