package pagination

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SortColumn maps a logical sort key to physical column metadata.
type SortColumn struct {
	// Column is the physical sort column.
	Column string

	// Nullable is true when Column may contain NULL. NULLs sort last in
	// ascending scans and first in descending scans.
	Nullable bool

	// Tiebreak is a unique, non-null column that makes the order total.
	// It is always scanned in ascending order.
	Tiebreak string
}

// Predicate is a SQL boolean expression with its bound arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// Empty reports whether the predicate matches every row.
func (p Predicate) Empty() bool { return p.SQL == "" }

// Placeholder renders the n-th (1-based) bind parameter of a statement.
type Placeholder func(n int) string

// QuestionPlaceholder renders '?' parameters (SQLite, MySQL).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders '$n' parameters (PostgreSQL).
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// ErrInvalidPosition is returned when a cursor position cannot be applied to
// a sort column.
var ErrInvalidPosition = errors.New("invalid cursor position")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// KeysetBuilder produces resumable predicates for sorted scans.
type KeysetBuilder struct {
	// Placeholder defaults to QuestionPlaceholder.
	Placeholder Placeholder

	// ArgOffset is the number of bind parameters that precede the predicate
	// in the final statement.
	ArgOffset int
}

func (b KeysetBuilder) param(n int) string {
	if b.Placeholder == nil {
		return QuestionPlaceholder(b.ArgOffset + n)
	}
	return b.Placeholder(b.ArgOffset + n)
}

// BuildPredicate returns the predicate that resumes a scan sorted by col in
// the given order strictly after the row at position.
//
// The four nullable cases differ because NULL ordering cannot be expressed
// with a single comparison operator:
//
//	non-null, asc:   (c > p) OR (c = p AND t > tv)
//	non-null, desc:  (c < p) OR (c = p AND t > tv)
//	nullable, asc,  p non-null: (c > p) OR (c = p AND t > tv) OR (c IS NULL)
//	nullable, desc, p non-null: (c < p) OR (c = p AND t > tv)
//	nullable, asc,  p null:     (c IS NULL AND t > tv)
//	nullable, desc, p null:     (c IS NULL AND t > tv) OR (c IS NOT NULL)
//
// In a descending scan NULLs come first, so a position inside the NULL
// partition still has every non-null row ahead of it.
func (b KeysetBuilder) BuildPredicate(position [2]any, col SortColumn, order Order) (Predicate, error) {
	if err := col.validate(); err != nil {
		return Predicate{}, err
	}
	if !order.Valid() {
		return Predicate{}, fmt.Errorf("%w: invalid order %q", ErrInvalidPosition, order)
	}

	primary, tiebreak := position[0], position[1]
	if tiebreak == nil {
		return Predicate{}, fmt.Errorf("%w: tiebreak value is null", ErrInvalidPosition)
	}

	c, t := col.Column, col.Tiebreak

	if primary == nil {
		if !col.Nullable {
			return Predicate{}, fmt.Errorf("%w: null value for non-nullable column %s", ErrInvalidPosition, c)
		}
		parts := []string{fmt.Sprintf("(%s IS NULL AND %s > %s)", c, t, b.param(1))}
		if order == OrderDesc {
			parts = append(parts, fmt.Sprintf("(%s IS NOT NULL)", c))
		}
		return Predicate{
			SQL:  "(" + strings.Join(parts, " OR ") + ")",
			Args: []any{tiebreak},
		}, nil
	}

	op := ">"
	if order == OrderDesc {
		op = "<"
	}

	parts := []string{
		fmt.Sprintf("(%s %s %s)", c, op, b.param(1)),
		fmt.Sprintf("(%s = %s AND %s > %s)", c, b.param(2), t, b.param(3)),
	}
	if col.Nullable && order == OrderAsc {
		parts = append(parts, fmt.Sprintf("(%s IS NULL)", c))
	}

	return Predicate{
		SQL:  "(" + strings.Join(parts, " OR ") + ")",
		Args: []any{primary, primary, tiebreak},
	}, nil
}

// OrderBy returns the ORDER BY expression matching BuildPredicate.
func (b KeysetBuilder) OrderBy(col SortColumn, order Order) (string, error) {
	if err := col.validate(); err != nil {
		return "", err
	}
	if !order.Valid() {
		return "", fmt.Errorf("%w: invalid order %q", ErrInvalidPosition, order)
	}

	dir := strings.ToUpper(string(order))
	primary := fmt.Sprintf("%s %s", col.Column, dir)
	if col.Nullable {
		if order == OrderAsc {
			primary += " NULLS LAST"
		} else {
			primary += " NULLS FIRST"
		}
	}
	return fmt.Sprintf("%s, %s ASC", primary, col.Tiebreak), nil
}

func (c SortColumn) validate() error {
	if !identifierPattern.MatchString(c.Column) {
		return fmt.Errorf("invalid sort column %q", c.Column)
	}
	if !identifierPattern.MatchString(c.Tiebreak) {
		return fmt.Errorf("invalid tiebreak column %q", c.Tiebreak)
	}
	return nil
}
