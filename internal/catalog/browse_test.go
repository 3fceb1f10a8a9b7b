package catalog

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

func testBodies() []Body {
	return []Body{
		body("b1", "Ceres", "dwarf", floatPtr(2.77), floatPtr(939.4)),
		body("b2", "Eros", "asteroid", floatPtr(1.46), floatPtr(16.8)),
		body("b3", "Apophis", "asteroid", nil, floatPtr(0.37)),
		body("b4", "Bennu", "asteroid", floatPtr(1.46), nil),
		body("b5", "Halley", "comet", nil, nil),
		body("b6", "Vesta", "asteroid", floatPtr(2.36), floatPtr(525.4)),
		body("b7", "Ceres", "asteroid", floatPtr(2.77), nil),
	}
}

func TestBrowse_NullBoundary(t *testing.T) {
	s := setupTestStore(t,
		body("a", "A", "asteroid", floatPtr(1), nil),
		body("b", "B", "asteroid", floatPtr(2), nil),
		body("n1", "N1", "asteroid", nil, nil),
		body("n2", "N2", "asteroid", nil, nil),
	)

	tests := []struct {
		order string
		want  []string
	}{
		{"asc", []string{"a", "b", "n1", "n2"}},
		{"desc", []string{"n1", "n2", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			q := url.Values{"sort": {SortDistance}, "order": {tt.order}}
			assert.Equal(t, tt.want, walkCursor(t, s, q, "1"))
		})
	}
}

func TestBrowse_CursorOrder(t *testing.T) {
	s := setupTestStore(t, testBodies()...)

	tests := []struct {
		name  string
		sort  string
		order string
		want  []string
	}{
		{"name asc", SortName, "asc", []string{"b3", "b4", "b1", "b7", "b2", "b5", "b6"}},
		{"name desc", SortName, "desc", []string{"b6", "b5", "b2", "b1", "b7", "b4", "b3"}},
		{"distance asc", SortDistance, "asc", []string{"b2", "b4", "b6", "b1", "b7", "b3", "b5"}},
		{"distance desc", SortDistance, "desc", []string{"b3", "b5", "b1", "b7", "b6", "b2", "b4"}},
		{"diameter asc", SortDiameter, "asc", []string{"b3", "b2", "b6", "b1", "b4", "b5", "b7"}},
		{"diameter desc", SortDiameter, "desc", []string{"b4", "b5", "b7", "b1", "b6", "b2", "b3"}},
	}

	for _, tt := range tests {
		for _, limit := range []string{"1", "2", "3", "100"} {
			t.Run(tt.name+"/limit "+limit, func(t *testing.T) {
				q := url.Values{"sort": {tt.sort}, "order": {tt.order}}
				assert.Equal(t, tt.want, walkCursor(t, s, q, limit))
			})
		}
	}
}

func TestBrowse_Offset(t *testing.T) {
	s := setupTestStore(t, testBodies()...)
	ctx := context.Background()

	tests := []struct {
		page    string
		want    []string
		hasMore bool
	}{
		{"1", []string{"b3", "b4", "b1"}, true},
		{"2", []string{"b7", "b2", "b5"}, true},
		{"3", []string{"b6"}, false},
		{"4", []string{}, false},
		{"92233720368547", []string{}, false},
	}

	for _, tt := range tests {
		t.Run("page "+tt.page, func(t *testing.T) {
			req, err := pagination.ParseRequest(url.Values{"page": {tt.page}, "limit": {"3"}}, PaginationOptions())
			require.NoError(t, err)

			page, err := s.Browse(ctx, req)
			require.NoError(t, err)

			ids := make([]string, 0, len(page.Items))
			for _, b := range page.Items {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.hasMore, page.HasMore)
			assert.Equal(t, pagination.ModeOffset, page.Mode)
			assert.Empty(t, page.NextCursor)
		})
	}
}

func TestBrowse_PageOutOfRange(t *testing.T) {
	_, err := pagination.ParseRequest(url.Values{"page": {"92233720368547760"}, "limit": {"100"}}, PaginationOptions())
	assert.ErrorIs(t, err, pagination.ErrInvalidParam)
}

func TestBrowse_Filters(t *testing.T) {
	s := setupTestStore(t, testBodies()...)

	tests := []struct {
		name  string
		query url.Values
		want  []string
	}{
		{"kind", url.Values{"kind": {"asteroid"}}, []string{"b3", "b4", "b7", "b2", "b6"}},
		{"name prefix case-insensitive", url.Values{"name": {"ce"}}, []string{"b1", "b7"}},
		{"kind and name", url.Values{"kind": {"dwarf"}, "name": {"Ce"}}, []string{"b1"}},
		{"like wildcards are literal", url.Values{"name": {"C_"}}, nil},
		{"percent is literal", url.Values{"name": {"%"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, walkCursor(t, s, tt.query, "2"))
		})
	}
}

func TestBrowse_UnknownFilter(t *testing.T) {
	s := setupTestStore(t, testBodies()...)

	req, err := pagination.ParseRequest(url.Values{"color": {"red"}}, PaginationOptions())
	require.NoError(t, err)

	_, err = s.Browse(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownFilter)
}

func TestBrowse_CursorRejections(t *testing.T) {
	s := setupTestStore(t, testBodies()...)
	ctx := context.Background()

	first, err := pagination.ParseRequest(url.Values{
		"pagination": {"cursor"}, "limit": {"2"}, "kind": {"asteroid"},
	}, PaginationOptions())
	require.NoError(t, err)

	page, err := s.Browse(ctx, first)
	require.NoError(t, err)
	require.NotEmpty(t, page.NextCursor)

	tests := []struct {
		name  string
		query url.Values
		want  error
	}{
		{
			name:  "different filters",
			query: url.Values{"cursor": {page.NextCursor}, "kind": {"comet"}},
			want:  pagination.ErrCursorFilterMismatch,
		},
		{
			name:  "different order",
			query: url.Values{"cursor": {page.NextCursor}, "kind": {"asteroid"}, "order": {"desc"}},
			want:  pagination.ErrCursorSortMismatch,
		},
		{
			name:  "garbage",
			query: url.Values{"cursor": {"not-a-cursor"}},
			want:  pagination.ErrCursorMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := pagination.ParseRequest(tt.query, PaginationOptions())
			require.NoError(t, err)

			_, err = s.Browse(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBrowse_NullPositionOnNonNullableSort(t *testing.T) {
	s := setupTestStore(t, testBodies()...)

	base, err := pagination.ParseRequest(url.Values{"pagination": {"cursor"}}, PaginationOptions())
	require.NoError(t, err)
	token, err := base.Mint(nil, "b1")
	require.NoError(t, err)

	req, err := pagination.ParseRequest(url.Values{"cursor": {token}}, PaginationOptions())
	require.NoError(t, err)

	_, err = s.Browse(context.Background(), req)
	assert.Equal(t, pagination.ReasonMalformed, pagination.ReasonOf(err))
}

func TestBrowse_Cancelled(t *testing.T) {
	s := setupTestStore(t, testBodies()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := pagination.ParseRequest(url.Values{}, PaginationOptions())
	require.NoError(t, err)

	_, err = s.Browse(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrCancelled))
}
