package pagination

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Mode is the pagination mode of a request.
type Mode string

const (
	ModeOffset Mode = "offset"
	ModeCursor Mode = "cursor"
)

// Default page size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Options describes what an endpoint accepts.
type Options struct {
	// SortKeys lists the logical sort keys the endpoint supports.
	SortKeys []string

	// DefaultSort is used when the request does not name a sort key.
	DefaultSort string

	// DefaultOrder is used when the request does not name an order.
	DefaultOrder Order

	// DefaultMode applies when the request carries no mode signal.
	DefaultMode Mode

	DefaultLimit int
	MaxLimit     int
}

// Request is a parsed paging request.
type Request struct {
	Mode    Mode
	Page    int
	Limit   int
	SortKey string
	Order   Order
	Cursor  string
	Filters map[string]any
}

// ParseRequest extracts paging, sort and filter parameters from a query.
//
// A request carrying a cursor together with an explicit page number or
// pagination=offset is rejected with ErrPaginationConflict.
func ParseRequest(query url.Values, opts Options) (Request, error) {
	opts = normalizeOptions(opts)

	req := Request{
		Mode:    opts.DefaultMode,
		Page:    1,
		Limit:   opts.DefaultLimit,
		SortKey: opts.DefaultSort,
		Order:   opts.DefaultOrder,
		Cursor:  strings.TrimSpace(query.Get(ParamCursor)),
		Filters: FiltersFromQuery(query),
	}

	modeParam := strings.ToLower(strings.TrimSpace(query.Get(ParamPagination)))
	pageParam := strings.TrimSpace(query.Get(ParamPage))

	if req.Cursor != "" && (pageParam != "" || modeParam == string(ModeOffset)) {
		return Request{}, ErrPaginationConflict
	}

	switch {
	case req.Cursor != "":
		req.Mode = ModeCursor
	case modeParam == string(ModeCursor):
		req.Mode = ModeCursor
	case modeParam == string(ModeOffset), pageParam != "":
		req.Mode = ModeOffset
	case modeParam != "":
		return Request{}, fmt.Errorf("%w: pagination must be %q or %q", ErrInvalidParam, ModeOffset, ModeCursor)
	}

	if req.Mode == ModeCursor && pageParam != "" {
		return Request{}, ErrPaginationConflict
	}

	if pageParam != "" {
		page, err := strconv.Atoi(pageParam)
		if err != nil || page < 1 {
			return Request{}, fmt.Errorf("%w: page must be a positive integer", ErrInvalidParam)
		}
		if page > maxPage(opts.MaxLimit) {
			return Request{}, fmt.Errorf("%w: page out of range", ErrInvalidParam)
		}
		req.Page = page
	}

	if raw := strings.TrimSpace(query.Get(ParamLimit)); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Request{}, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidParam)
		}
		req.Limit = min(limit, opts.MaxLimit)
	}

	if raw := strings.TrimSpace(query.Get(ParamSort)); raw != "" {
		if !slices.Contains(opts.SortKeys, raw) {
			return Request{}, fmt.Errorf("%w: unsupported sort key %q", ErrInvalidParam, raw)
		}
		req.SortKey = raw
	}

	if raw := strings.ToLower(strings.TrimSpace(query.Get(ParamOrder))); raw != "" {
		if !Order(raw).Valid() {
			return Request{}, fmt.Errorf("%w: order must be asc or desc", ErrInvalidParam)
		}
		req.Order = Order(raw)
	}

	return req, nil
}

func normalizeOptions(opts Options) Options {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = MaxLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if !opts.DefaultOrder.Valid() {
		opts.DefaultOrder = OrderAsc
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = ModeOffset
	}
	if opts.DefaultSort == "" && len(opts.SortKeys) > 0 {
		opts.DefaultSort = opts.SortKeys[0]
	}
	return opts
}

// Fingerprint returns the filter fingerprint of the request.
func (r Request) Fingerprint() string {
	return Fingerprint(r.Filters)
}

// Expectation returns what a cursor must agree with to resume this request.
func (r Request) Expectation() Expectation {
	return Expectation{
		SortKey:     r.SortKey,
		Order:       r.Order,
		Fingerprint: r.Fingerprint(),
	}
}

// Resume validates the request's cursor. It returns nil for the first page
// of a cursor scan and for offset requests.
func (r Request) Resume() (*CursorPayload, error) {
	if r.Mode != ModeCursor || r.Cursor == "" {
		return nil, nil
	}
	return ValidateCursor(r.Cursor, r.Expectation())
}

// maxPage is the largest page number whose offset fits an int at the
// largest page size.
func maxPage(maxLimit int) int {
	return math.MaxInt/maxLimit + 1
}

// Offset returns the number of rows to skip in offset mode. It saturates at
// math.MaxInt instead of overflowing.
func (r Request) Offset() int {
	if r.Mode != ModeOffset || r.Page < 1 || r.Limit < 1 {
		return 0
	}
	if r.Page-1 > math.MaxInt/r.Limit {
		return math.MaxInt
	}
	return (r.Page - 1) * r.Limit
}

// FetchLimit is the number of rows to request from a backend: one more than
// the page size, so that "has more" is known without a count query.
func (r Request) FetchLimit() int {
	if r.Limit == math.MaxInt {
		return r.Limit
	}
	return r.Limit + 1
}

// Mint encodes a next cursor positioned at the given row values.
func (r Request) Mint(primary, tiebreak any) (string, error) {
	return EncodeCursor(CursorPayload{
		Version:     CursorVersion,
		SortKey:     r.SortKey,
		Order:       r.Order,
		Fingerprint: r.Fingerprint(),
		Position:    [2]any{primary, tiebreak},
		Direction:   DirectionNext,
	})
}
