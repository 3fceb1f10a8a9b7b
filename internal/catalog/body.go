package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

// Body is one orbital body of the catalog.
type Body struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	DistanceAU   *float64  `json:"distance_au"`
	DiameterKM   *float64  `json:"diameter_km"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Sort keys.
const (
	SortName     = "name"
	SortDistance = "distance"
	SortDiameter = "diameter"
)

// Filter parameters.
const (
	FilterKind = "kind"
	FilterName = "name"
)

var sortColumns = map[string]pagination.SortColumn{
	SortName:     {Column: "name", Tiebreak: "id"},
	SortDistance: {Column: "distance_au", Nullable: true, Tiebreak: "id"},
	SortDiameter: {Column: "diameter_km", Nullable: true, Tiebreak: "id"},
}

// PaginationOptions describes the paging parameters the catalog accepts.
func PaginationOptions() pagination.Options {
	return pagination.Options{
		SortKeys:     []string{SortName, SortDistance, SortDiameter},
		DefaultSort:  SortName,
		DefaultOrder: pagination.OrderAsc,
		DefaultMode:  pagination.ModeOffset,
	}
}

// positionFor returns the cursor position of a body for sortKey.
func positionFor(sortKey string) pagination.PositionFunc[Body] {
	return func(b Body) (any, any) {
		switch sortKey {
		case SortDistance:
			return nullable(b.DistanceAU), b.ID
		case SortDiameter:
			return nullable(b.DiameterKM), b.ID
		default:
			return b.Name, b.ID
		}
	}
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Insert adds or replaces bodies.
func (s *Store) Insert(ctx context.Context, bodies ...Body) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bodies (id, name, kind, distance_au, diameter_km, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bodies {
		if b.ID == "" {
			return fmt.Errorf("body %q has no id", b.Name)
		}
		_, err := stmt.ExecContext(ctx,
			b.ID, b.Name, b.Kind,
			nullFloat(b.DistanceAU), nullFloat(b.DiameterKM),
			b.DiscoveredAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("insert body %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func scanBody(rows *sql.Rows) (Body, error) {
	var (
		b          Body
		distance   sql.NullFloat64
		diameter   sql.NullFloat64
		discovered string
	)
	if err := rows.Scan(&b.ID, &b.Name, &b.Kind, &distance, &diameter, &discovered); err != nil {
		return Body{}, err
	}
	if distance.Valid {
		b.DistanceAU = &distance.Float64
	}
	if diameter.Valid {
		b.DiameterKM = &diameter.Float64
	}
	t, err := time.Parse(time.RFC3339, discovered)
	if err != nil {
		return Body{}, fmt.Errorf("body %s: discovered_at: %w", b.ID, err)
	}
	b.DiscoveredAt = t
	return b, nil
}
