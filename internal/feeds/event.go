package feeds

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
)

// Event is one entry of an event feed.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Object     string    `json:"object,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	Magnitude  *float64  `json:"magnitude"`
}

// Sort keys.
const (
	SortTime      = "time"
	SortMagnitude = "magnitude"
)

// PaginationOptions describes the paging parameters feeds accept. Feeds list
// the newest events first by default.
func PaginationOptions() pagination.Options {
	return pagination.Options{
		SortKeys:     []string{SortTime, SortMagnitude},
		DefaultSort:  SortTime,
		DefaultOrder: pagination.OrderDesc,
		DefaultMode:  pagination.ModeCursor,
	}
}

func positionFor(sortKey string) pagination.PositionFunc[Event] {
	return func(e Event) (any, any) {
		if sortKey == SortMagnitude {
			if e.Magnitude == nil {
				return nil, e.ID
			}
			return *e.Magnitude, e.ID
		}
		return e.ObservedAt.UnixMilli(), e.ID
	}
}

func toEvents(rows []client.Row) ([]Event, error) {
	events := make([]Event, 0, len(rows))
	for i, row := range rows {
		var e Event

		switch id := row["id"].(type) {
		case string:
			e.ID = id
		case float64:
			e.ID = strconv.FormatFloat(id, 'f', -1, 64)
		}
		if e.ID == "" {
			return nil, &client.ContractError{Detail: fmt.Sprintf("event %d: missing id", i)}
		}

		ts, _ := row["time"].(string)
		observed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, &client.ContractError{Detail: fmt.Sprintf("event %s: invalid time %q", e.ID, ts)}
		}
		e.ObservedAt = observed.UTC()

		e.Type, _ = row["type"].(string)
		e.Object, _ = row["object"].(string)

		switch mag := row["mag"].(type) {
		case nil:
		case float64:
			e.Magnitude = &mag
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(mag), 64)
			if err != nil {
				return nil, &client.ContractError{Detail: fmt.Sprintf("event %s: invalid mag %q", e.ID, mag)}
			}
			e.Magnitude = &f
		default:
			return nil, &client.ContractError{Detail: fmt.Sprintf("event %s: invalid mag type %T", e.ID, mag)}
		}

		events = append(events, e)
	}
	return events, nil
}
