// Package feeds serves volatile upstream event feeds. Every page of a feed is
// collected in parallel, kept as a short-lived snapshot and paged in memory.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/lrucache"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

// FilterType selects events of one type.
const FilterType = "type"

var (
	// ErrUnknownFeed is returned for feed names that are not configured.
	ErrUnknownFeed = errors.New("unknown feed")

	// ErrInvalidFilter is returned for unsupported feed filters.
	ErrInvalidFilter = errors.New("invalid feed filter")
)

// Config configures the feed service.
type Config struct {
	// Feeds maps feed names to upstream paths.
	Feeds map[string]string

	// SnapshotTTL is how long a collected feed is served before it is
	// fetched again.
	SnapshotTTL time.Duration

	Batch pagination.BatchConfig
}

// DefaultSnapshotTTL is used when Config.SnapshotTTL is not set.
const DefaultSnapshotTTL = 30 * time.Second

type snapshot struct {
	events  []Event
	expires time.Time
}

// Service lists feed events.
type Service struct {
	batch     *pagination.BatchFetcher[client.Row]
	feeds     map[string]string
	ttl       time.Duration
	snapshots *lrucache.Cache[string, snapshot]
	group     singleflight.Group
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates a feed service reading pages from upstream.
func NewService(upstream pagination.PageFetcher[client.Row], cfg Config, logger zerolog.Logger) (*Service, error) {
	if upstream == nil {
		return nil, fmt.Errorf("feed upstream is required")
	}
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("at least one feed must be configured")
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}

	snapshots, err := lrucache.New[string, snapshot](len(cfg.Feeds), nil)
	if err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "feeds").Logger()
	return &Service{
		batch:     pagination.NewBatchFetcher[client.Row](upstream, cfg.Batch, logger),
		feeds:     cfg.Feeds,
		ttl:       cfg.SnapshotTTL,
		snapshots: snapshots,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// Feeds returns the configured feed names in order.
func (s *Service) Feeds() []string {
	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns one page of a feed's events.
func (s *Service) List(ctx context.Context, feed string, req pagination.Request) (*pagination.Page[Event], error) {
	path, ok := s.feeds[feed]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeed, feed)
	}

	eventType, err := parseFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	after, err := req.Resume()
	if err != nil {
		return nil, err
	}

	all, err := s.snapshot(ctx, feed, path)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(all))
	for _, e := range all {
		if eventType == "" || strings.EqualFold(e.Type, eventType) {
			events = append(events, e)
		}
	}

	position := positionFor(req.SortKey)
	pagination.SortSlice(events, position, req.Order)
	return pagination.Assemble(req, pagination.Window(req, after, events, position), position)
}

// snapshot returns the collected events of a feed. Concurrent refreshes of
// the same feed share one collection, which outlives a cancelled caller.
func (s *Service) snapshot(ctx context.Context, feed, path string) ([]Event, error) {
	if snap, ok := s.snapshots.Get(feed); ok && s.now().Before(snap.expires) {
		return snap.events, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &client.FetchError{Class: client.ClassCancelled, Err: err}
	}

	ch := s.group.DoChan(feed, func() (any, error) {
		rows, err := s.batch.FetchAll(context.WithoutCancel(ctx), path)
		if err != nil {
			s.snapshots.Delete(feed)
			return nil, err
		}
		events, err := toEvents(rows)
		if err != nil {
			s.snapshots.Delete(feed)
			s.logger.Error().Err(err).Str("feed", feed).Msg("Feed contract mismatch")
			return nil, err
		}
		s.snapshots.Put(feed, snapshot{events: events, expires: s.now().Add(s.ttl)})
		s.logger.Debug().Str("feed", feed).Int("events", len(events)).Msg("Feed snapshot refreshed")
		return events, nil
	})

	select {
	case <-ctx.Done():
		return nil, &client.FetchError{Class: client.ClassCancelled, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Event), nil
	}
}

func parseFilters(filters map[string]any) (string, error) {
	var eventType string
	for key, raw := range filters {
		if raw == nil {
			continue
		}
		switch key {
		case FilterType:
			eventType = strings.TrimSpace(fmt.Sprint(raw))
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidFilter, key)
		}
	}
	return eventType, nil
}
