// Package client executes calls against upstream data sources with bounded
// timeouts, classified errors, retries with exponential backoff and an
// optional circuit breaker, and composes primary and secondary search
// strategies.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/astro-gateway/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Prometheus metrics for upstream HTTP requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_upstream_requests_total",
		Help: "Total upstream HTTP requests by source and status",
	}, []string{"source", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astro_upstream_request_duration_seconds",
		Help:    "Upstream HTTP request duration in seconds by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "astro_upstream_breaker_state",
		Help: "Circuit breaker state by source (0 closed, 1 half-open, 2 open)",
	}, []string{"source"})
)

// maxBodyBytes bounds upstream response bodies.
const maxBodyBytes = 16 << 20

// Shape is the body layout an upstream endpoint is expected to return.
type Shape int

const (
	// ShapeRows is a JSON array of objects.
	ShapeRows Shape = iota

	// ShapeTable is {"count": n, "fields": [...], "data": [[...], ...]}.
	// count may be a number or a numeric string.
	ShapeTable
)

// Row is one upstream record.
type Row map[string]any

// Result is a decoded upstream response.
type Result struct {
	Rows []Row

	// Pages is the X-Pages header value, or 1 when absent.
	Pages int

	// TTL is the freshness lifetime announced by the upstream.
	TTL time.Duration
}

// BreakerConfig configures the per-upstream circuit breaker.
type BreakerConfig struct {
	Enabled bool

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Config holds the client configuration.
type Config struct {
	// Name labels logs and metrics (e.g. "sbdb").
	Name string

	// BaseURL is the upstream root; request paths are resolved against it.
	BaseURL string

	UserAgent string

	Retry   Options
	Breaker BreakerConfig

	// HTTPClient defaults to a client without its own timeout; attempts
	// are bounded by Retry.Timeout.
	HTTPClient *http.Client

	FetcherOptions []FetcherOption
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(name, baseURL string) Config {
	return Config{
		Name:      name,
		BaseURL:   baseURL,
		UserAgent: "astro-gateway/1.0",
		Retry:     DefaultOptions(),
		Breaker: BreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// Client is an HTTP upstream whose calls run through a Fetcher.
type Client struct {
	name       string
	baseURL    *url.URL
	userAgent  string
	httpClient *http.Client
	fetcher    *Fetcher
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger = logger.With().Str("component", "upstream").Str("upstream", cfg.Name).Logger()

	c := &Client{
		name:       cfg.Name,
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		fetcher:    NewFetcher(cfg.Name, cfg.Retry, logger, cfg.FetcherOptions...),
		logger:     logger,
	}

	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Name, cfg.Breaker, logger)
	}

	return c, nil
}

func newBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only upstream health failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !Classify(context.Background(), err).Retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// Fetcher returns the client's fetcher.
func (c *Client) Fetcher() *Fetcher {
	return c.fetcher
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// FetchRows performs a GET of path with query and decodes the body as shape.
func (c *Client) FetchRows(ctx context.Context, path string, query url.Values, shape Shape) (*Result, error) {
	return Execute(ctx, c.fetcher, func(ctx context.Context) (*Result, error) {
		return c.attempt(ctx, path, query, shape)
	})
}

// FetchPage fetches one page of a page-numbered resource. It satisfies
// pagination.PageFetcher for Row.
func (c *Client) FetchPage(ctx context.Context, path string, page int) ([]Row, int, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	res, err := c.FetchRows(ctx, path, query, ShapeRows)
	if err != nil {
		return nil, 0, err
	}
	return res.Rows, res.Pages, nil
}

func (c *Client) attempt(ctx context.Context, path string, query url.Values, shape Shape) (*Result, error) {
	if c.breaker == nil {
		return c.do(ctx, path, query, shape)
	}
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path, query, shape)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, shape Shape) (*Result, error) {
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamRequestDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(c.name, "network_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, newStatusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	rows, err := DecodeRows(body, shape)
	if err != nil {
		return nil, err
	}

	pages, err := parsePages(resp.Header.Get("X-Pages"))
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("path", path).
		Int("rows", len(rows)).
		Int("pages", pages).
		Msg("Upstream response decoded")

	return &Result{
		Rows:  rows,
		Pages: pages,
		TTL:   cache.TTLFromHeaders(resp.Header, time.Now()),
	}, nil
}

func parsePages(v string) (int, error) {
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 0, &ContractError{Detail: fmt.Sprintf("invalid X-Pages header %q", v)}
	}
	return n, nil
}

// DecodeRows decodes an upstream body of the given shape. Any deviation
// from the shape is a *ContractError.
func DecodeRows(body []byte, shape Shape) ([]Row, error) {
	switch shape {
	case ShapeRows:
		return decodeRowArray(body)
	case ShapeTable:
		return decodeTable(body)
	default:
		return nil, fmt.Errorf("unknown shape %d", shape)
	}
}

func decodeRowArray(body []byte) ([]Row, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ContractError{Detail: "expected a JSON array", Err: err}
	}

	rows := make([]Row, 0, len(raw))
	for i, item := range raw {
		var row Row
		if err := json.Unmarshal(item, &row); err != nil || row == nil {
			return nil, &ContractError{Detail: fmt.Sprintf("row %d is not an object", i)}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type tableBody struct {
	Count  json.RawMessage   `json:"count"`
	Fields []string          `json:"fields"`
	Data   []json.RawMessage `json:"data"`
}

func decodeTable(body []byte) ([]Row, error) {
	var tb tableBody
	if err := json.Unmarshal(body, &tb); err != nil {
		return nil, &ContractError{Detail: "expected a table object", Err: err}
	}
	if tb.Count == nil {
		return nil, &ContractError{Detail: "missing count"}
	}
	count, err := parseCount(tb.Count)
	if err != nil {
		return nil, err
	}

	// An empty result may omit fields and data.
	if count == 0 && len(tb.Data) == 0 {
		return []Row{}, nil
	}
	if len(tb.Fields) == 0 {
		return nil, &ContractError{Detail: "missing fields"}
	}
	if count != len(tb.Data) {
		return nil, &ContractError{Detail: fmt.Sprintf("count %d does not match %d data rows", count, len(tb.Data))}
	}

	rows := make([]Row, 0, len(tb.Data))
	for i, raw := range tb.Data {
		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, &ContractError{Detail: fmt.Sprintf("data row %d is not an array", i)}
		}
		if len(values) != len(tb.Fields) {
			return nil, &ContractError{Detail: fmt.Sprintf("data row %d has %d values for %d fields", i, len(values), len(tb.Fields))}
		}
		row := make(Row, len(tb.Fields))
		for j, field := range tb.Fields {
			row[field] = values[j]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseCount(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n >= 0 {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n, nil
		}
	}
	return 0, &ContractError{Detail: fmt.Sprintf("invalid count %s", raw)}
}

// IsContractMismatch reports whether err is a contract mismatch.
func IsContractMismatch(err error) bool {
	return errors.Is(err, ErrContractMismatch)
}
