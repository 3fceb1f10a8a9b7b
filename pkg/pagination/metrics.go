package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CursorRejections tracks rejected cursors by reason.
	CursorRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_cursor_rejections_total",
			Help: "Total number of rejected pagination cursors",
		},
		[]string{"reason"},
	)

	// PagesServed tracks served pages by mode.
	PagesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_pages_served_total",
			Help: "Total number of pages served by pagination mode",
		},
		[]string{"mode"}, // "offset", "cursor"
	)

	// FeedPagesFetched tracks upstream feed pages collected by the batch fetcher.
	FeedPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_feed_pages_fetched_total",
			Help: "Total number of upstream feed pages fetched by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)
)

func recordRejection(reason CursorErrorReason) {
	CursorRejections.WithLabelValues(string(reason)).Inc()
}
