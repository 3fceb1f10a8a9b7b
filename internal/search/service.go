// Package search resolves small-body searches against upstream search APIs,
// falling back from a pattern query to an exact lookup, and pages the
// results in memory.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/astro-gateway/pkg/cache"
	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

// Filter parameters.
const (
	FilterQuery = "q"
	FilterKind  = "kind"
)

// ErrInvalidQuery is returned for missing or unsupported search filters.
var ErrInvalidQuery = errors.New("invalid search query")

var kindCodes = map[string]string{
	"asteroid": "a",
	"comet":    "c",
}

// ResultCache is the shared cache contract search needs.
type ResultCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Upstream is an HTTP upstream returning decoded rows.
type Upstream interface {
	FetchRows(ctx context.Context, path string, query url.Values, shape client.Shape) (*client.Result, error)
}

// Config configures the search service.
type Config struct {
	// PrimaryPath is the pattern query endpoint (tabular shape).
	PrimaryPath string

	// SecondaryPath is the exact lookup endpoint (row array shape).
	SecondaryPath string

	// MaxCacheTTL caps how long results are cached. Zero keeps the
	// upstream-announced lifetime.
	MaxCacheTTL time.Duration
}

// DefaultConfig returns the default endpoint layout.
func DefaultConfig() Config {
	return Config{
		PrimaryPath:   "/sbdb_query.api",
		SecondaryPath: "/sbdb.api",
		MaxCacheTTL:   time.Hour,
	}
}

// Service runs searches.
type Service struct {
	primary   Upstream
	secondary Upstream
	cache     ResultCache
	cfg       Config
	logger    zerolog.Logger
}

// NewService creates a search service. primary and secondary may be the same
// upstream.
func NewService(primary, secondary Upstream, resultCache ResultCache, cfg Config, logger zerolog.Logger) (*Service, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("primary and secondary upstreams are required")
	}
	if resultCache == nil {
		resultCache = cache.Disabled("no cache configured")
	}
	defaults := DefaultConfig()
	if cfg.PrimaryPath == "" {
		cfg.PrimaryPath = defaults.PrimaryPath
	}
	if cfg.SecondaryPath == "" {
		cfg.SecondaryPath = defaults.SecondaryPath
	}

	return &Service{
		primary:   primary,
		secondary: secondary,
		cache:     resultCache,
		cfg:       cfg,
		logger:    logger.With().Str("component", "search").Logger(),
	}, nil
}

// resultSet is what a strategy produces.
type resultSet struct {
	Matches []Match
	TTL     time.Duration
}

// Search returns one page of matches and the stage that produced them.
func (s *Service) Search(ctx context.Context, req pagination.Request) (*pagination.Page[Match], client.Outcome, error) {
	q, kind, err := parseFilters(req.Filters)
	if err != nil {
		return nil, "", err
	}

	after, err := req.Resume()
	if err != nil {
		return nil, "", err
	}

	matches, outcome, err := s.lookup(ctx, req.Fingerprint(), q, kind)
	if err != nil {
		return nil, "", err
	}

	position := positionFor(req.SortKey)
	pagination.SortSlice(matches, position, req.Order)
	page, err := pagination.Assemble(req, pagination.Window(req, after, matches, position), position)
	if err != nil {
		return nil, "", err
	}
	return page, outcome, nil
}

func (s *Service) lookup(ctx context.Context, fingerprint, q, kind string) ([]Match, client.Outcome, error) {
	key := cache.CacheKey{Namespace: "search", Endpoint: s.cfg.PrimaryPath, Fingerprint: fingerprint}

	entry, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var matches []Match
		if err := json.Unmarshal(entry.Data, &matches); err == nil {
			s.logger.Debug().Str("key", key.String()).Msg("Search cache hit")
			return matches, client.Outcome(entry.Source), nil
		}
		s.logger.Warn().Str("key", key.String()).Msg("Discarding undecodable cached search result")
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Msg("Search cache unavailable")
	}

	fs := client.NewFallbackSearch[*resultSet]("sbdb",
		func(ctx context.Context) (*resultSet, error) { return s.patternSearch(ctx, q, kind) },
		func(ctx context.Context) (*resultSet, error) { return s.exactLookup(ctx, q, kind) },
		s.logger,
	)

	result, outcome, err := fs.Search(ctx)
	if err != nil {
		return nil, "", err
	}
	if result == nil {
		return []Match{}, outcome, nil
	}

	s.store(ctx, key, result, outcome)
	return result.Matches, outcome, nil
}

func (s *Service) store(ctx context.Context, key cache.CacheKey, result *resultSet, outcome client.Outcome) {
	ttl := result.TTL
	if s.cfg.MaxCacheTTL > 0 {
		ttl = min(ttl, s.cfg.MaxCacheTTL)
	}
	if ttl <= 0 || ctx.Err() != nil {
		return
	}

	data, err := json.Marshal(result.Matches)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode search result")
		return
	}

	entry := cache.NewEntry(data, ttl, time.Now())
	entry.Source = string(outcome)
	if err := s.cache.Set(ctx, key, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache search result")
	}
}

// patternSearch matches the query anywhere in the full name.
func (s *Service) patternSearch(ctx context.Context, q, kind string) (*resultSet, error) {
	constraint, err := json.Marshal(map[string][]string{
		"AND": {fieldName + "|RE|.*" + regexp.QuoteMeta(q) + ".*"},
	})
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"fields":   {strings.Join(upstreamFields, ",")},
		"sb-cdata": {string(constraint)},
	}
	if kind != "" {
		query.Set("sb-kind", kind)
	}

	res, err := s.primary.FetchRows(ctx, s.cfg.PrimaryPath, query, client.ShapeTable)
	if err != nil {
		return nil, err
	}
	matches, err := toMatches(res.Rows)
	if err != nil {
		return nil, err
	}
	return &resultSet{Matches: matches, TTL: res.TTL}, nil
}

// exactLookup resolves the query as a designation or name. The lookup
// endpoint has no kind filter, so kind is applied here.
func (s *Service) exactLookup(ctx context.Context, q, kind string) (*resultSet, error) {
	query := url.Values{"sstr": {q}}

	res, err := s.secondary.FetchRows(ctx, s.cfg.SecondaryPath, query, client.ShapeRows)
	if err != nil {
		return nil, err
	}
	matches, err := toMatches(res.Rows)
	if err != nil {
		return nil, err
	}

	if kind != "" {
		filtered := matches[:0]
		for _, m := range matches {
			if strings.HasPrefix(m.Kind, kind) {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}
	return &resultSet{Matches: matches, TTL: res.TTL}, nil
}

func parseFilters(filters map[string]any) (q, kind string, err error) {
	for key, raw := range filters {
		if raw == nil {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(raw))
		switch key {
		case FilterQuery:
			q = v
		case FilterKind:
			if v == "" {
				continue
			}
			code, ok := kindCodes[strings.ToLower(v)]
			if !ok {
				return "", "", fmt.Errorf("%w: kind must be asteroid or comet", ErrInvalidQuery)
			}
			kind = code
		default:
			return "", "", fmt.Errorf("%w: unknown filter %q", ErrInvalidQuery, key)
		}
	}
	if q == "" {
		return "", "", fmt.Errorf("%w: %s is required", ErrInvalidQuery, FilterQuery)
	}
	return q, kind, nil
}
