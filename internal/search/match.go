package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

// Match is one small body returned by a search.
type Match struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind,omitempty"`
	DistanceAU *float64 `json:"distance_au"`
}

// Upstream field names.
const (
	fieldID       = "spkid"
	fieldName     = "full_name"
	fieldKind     = "kind"
	fieldDistance = "a"
)

var upstreamFields = []string{fieldID, fieldName, fieldKind, fieldDistance}

// Sort keys.
const (
	SortName     = "name"
	SortDistance = "distance"
)

// PaginationOptions describes the paging parameters search accepts.
func PaginationOptions() pagination.Options {
	return pagination.Options{
		SortKeys:     []string{SortName, SortDistance},
		DefaultSort:  SortName,
		DefaultOrder: pagination.OrderAsc,
		DefaultMode:  pagination.ModeCursor,
	}
}

func positionFor(sortKey string) pagination.PositionFunc[Match] {
	return func(m Match) (any, any) {
		if sortKey == SortDistance {
			if m.DistanceAU == nil {
				return nil, m.ID
			}
			return *m.DistanceAU, m.ID
		}
		return m.Name, m.ID
	}
}

// toMatches converts upstream rows. A row missing its id or name breaks the
// upstream contract.
func toMatches(rows []client.Row) ([]Match, error) {
	matches := make([]Match, 0, len(rows))
	for i, row := range rows {
		id, ok := scalarString(row[fieldID])
		if !ok || id == "" {
			return nil, &client.ContractError{Detail: fmt.Sprintf("row %d: missing %s", i, fieldID)}
		}
		name, ok := row[fieldName].(string)
		if !ok {
			return nil, &client.ContractError{Detail: fmt.Sprintf("row %d: missing %s", i, fieldName)}
		}
		m := Match{ID: id, Name: strings.TrimSpace(name)}

		if kind, ok := row[fieldKind].(string); ok {
			m.Kind = kind
		}

		distance, err := optionalFloat(row[fieldDistance])
		if err != nil {
			return nil, &client.ContractError{Detail: fmt.Sprintf("row %d: %s: %v", i, fieldDistance, err)}
		}
		m.DistanceAU = distance

		matches = append(matches, m)
	}
	return matches, nil
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

// optionalFloat accepts a JSON number, a numeric string or null.
func optionalFloat(v any) (*float64, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &val, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", val)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}
