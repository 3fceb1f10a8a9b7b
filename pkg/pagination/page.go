package pagination

import "fmt"

// Page is one window of a paginated result.
type Page[T any] struct {
	Items      []T    `json:"items"`
	Mode       Mode   `json:"mode"`
	Limit      int    `json:"limit"`
	Page       int    `json:"page,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// PositionFunc returns the primary sort value and the tiebreak value of a row.
type PositionFunc[T any] func(item T) (primary any, tiebreak any)

// Assemble builds a page from rows fetched with req.FetchLimit().
//
// When the look-ahead row exists it is dropped and, in cursor mode, a next
// cursor is minted from the last returned row.
func Assemble[T any](req Request, rows []T, position PositionFunc[T]) (*Page[T], error) {
	page := &Page[T]{
		Mode:  req.Mode,
		Limit: req.Limit,
	}
	if req.Mode == ModeOffset {
		page.Page = req.Page
	}

	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
		page.HasMore = true
	}
	if rows == nil {
		rows = make([]T, 0)
	}
	page.Items = rows

	if page.HasMore && req.Mode == ModeCursor && len(rows) > 0 {
		primary, tiebreak := position(rows[len(rows)-1])
		next, err := req.Mint(primary, tiebreak)
		if err != nil {
			return nil, fmt.Errorf("mint next cursor: %w", err)
		}
		page.NextCursor = next
	}

	PagesServed.WithLabelValues(string(req.Mode)).Inc()
	return page, nil
}
