package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

// ErrUnknownFilter is returned for filter parameters the catalog does not
// support.
var ErrUnknownFilter = errors.New("unknown filter")

const selectBodies = `SELECT id, name, kind, distance_au, diameter_km, discovered_at FROM bodies`

// Browse returns one page of bodies. Offset requests skip rows; cursor
// requests resume strictly after the cursor position.
func (s *Store) Browse(ctx context.Context, req pagination.Request) (*pagination.Page[Body], error) {
	col, ok := sortColumns[req.SortKey]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported sort key %q", pagination.ErrInvalidParam, req.SortKey)
	}

	after, err := req.Resume()
	if err != nil {
		return nil, err
	}

	conds, args, err := filterClause(req.Filters)
	if err != nil {
		return nil, err
	}

	kb := pagination.KeysetBuilder{Placeholder: pagination.QuestionPlaceholder, ArgOffset: len(args)}
	if after != nil {
		pred, err := kb.BuildPredicate(after.Position, col, req.Order)
		if err != nil {
			return nil, &pagination.CursorError{Reason: pagination.ReasonMalformed, Detail: err.Error()}
		}
		conds = append(conds, pred.SQL)
		args = append(args, pred.Args...)
	}

	orderBy, err := kb.OrderBy(col, req.Order)
	if err != nil {
		return nil, err
	}

	var q strings.Builder
	q.WriteString(selectBodies)
	if len(conds) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(conds, " AND "))
	}
	q.WriteString(" ORDER BY ")
	q.WriteString(orderBy)
	q.WriteString(" LIMIT ?")
	args = append(args, req.FetchLimit())
	if offset := req.Offset(); offset > 0 {
		q.WriteString(" OFFSET ?")
		args = append(args, offset)
	}
	query := q.String()

	s.logger.Debug().
		Str("sort", req.SortKey).
		Str("order", string(req.Order)).
		Str("mode", string(req.Mode)).
		Bool("resumed", after != nil).
		Msg("Browsing catalog")

	bodies, err := client.Execute(ctx, s.fetcher, func(ctx context.Context) ([]Body, error) {
		return s.query(ctx, query, args)
	})
	if err != nil {
		return nil, err
	}

	return pagination.Assemble(req, bodies, positionFor(req.SortKey))
}

func (s *Store) query(ctx context.Context, query string, args []any) ([]Body, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bodies: %w", err)
	}
	defer rows.Close()

	var bodies []Body
	for rows.Next() {
		b, err := scanBody(rows)
		if err != nil {
			return nil, fmt.Errorf("scan body: %w", err)
		}
		bodies = append(bodies, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bodies: %w", err)
	}
	return bodies, nil
}

// filterClause turns request filters into SQL conditions.
func filterClause(filters map[string]any) ([]string, []any, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		conds []string
		args  []any
	)
	for _, k := range keys {
		if filters[k] == nil {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(filters[k]))
		if v == "" {
			continue
		}
		switch k {
		case FilterKind:
			conds = append(conds, "kind = ?")
			args = append(args, v)
		case FilterName:
			conds = append(conds, `name LIKE ? ESCAPE '\'`)
			args = append(args, escapeLike(v)+"%")
		default:
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFilter, k)
		}
	}
	return conds, args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
