// Package pagination provides the shared paging protocol for every browse and
// search endpoint of the gateway.
//
// Two modes are supported:
//
//   - offset mode: classic page/limit windows, only meaningful for backends
//     that can skip rows cheaply.
//   - cursor mode: keyset pagination driven by an opaque, stateless token.
//
// A cursor token carries the sort key, the sort order, a fingerprint of the
// request's non-pagination filters and the position (primary sort value plus
// a unique tiebreak value) of the last row that was returned. A token is only
// accepted for a request with the same effective sort and the same filters:
//
//	payload, err := pagination.ValidateCursor(token, pagination.Expectation{
//		SortKey:     "distance",
//		Order:       pagination.OrderAsc,
//		Fingerprint: pagination.Fingerprint(filters),
//	})
//	switch {
//	case errors.Is(err, pagination.ErrCursorFilterMismatch):
//		// cursor was minted for a different filtered view
//	}
//
// The resumable predicate for SQL backends is produced by KeysetBuilder; the
// in-memory equivalent (used for upstream feeds and search results) is
// ResumeSlice. Both request one row beyond the page size so that a next
// cursor is only minted when more rows exist.
//
// BatchFetcher collects every page of a page-numbered upstream feed in
// parallel with a bounded worker pool.
package pagination
