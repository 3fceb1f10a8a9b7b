package pagination

import "fmt"

// Expectation describes the effective sort and filters of the current
// request, against which a cursor is validated.
type Expectation struct {
	SortKey     string
	Order       Order
	Fingerprint string
}

// ValidateCursor decodes token and checks it against the current request.
//
// Checks run in a fixed order and stop at the first failure:
// structure (ErrCursorMalformed), encoding version (ErrCursorVersionMismatch),
// sort key and order (ErrCursorSortMismatch), filter fingerprint
// (ErrCursorFilterMismatch).
func ValidateCursor(token string, want Expectation) (*CursorPayload, error) {
	payload, err := DecodeCursor(token)
	if err != nil {
		recordRejection(ReasonMalformed)
		return nil, err
	}

	if payload.Version != CursorVersion {
		recordRejection(ReasonVersionMismatch)
		return nil, &CursorError{
			Reason: ReasonVersionMismatch,
			Detail: fmt.Sprintf("version %d, expected %d", payload.Version, CursorVersion),
		}
	}

	if payload.SortKey != want.SortKey || payload.Order != want.Order {
		recordRejection(ReasonSortMismatch)
		return nil, &CursorError{
			Reason: ReasonSortMismatch,
			Detail: fmt.Sprintf("cursor sorts by %s %s, request sorts by %s %s",
				payload.SortKey, payload.Order, want.SortKey, want.Order),
		}
	}

	if payload.Fingerprint != want.Fingerprint {
		recordRejection(ReasonFilterMismatch)
		return nil, &CursorError{
			Reason: ReasonFilterMismatch,
			Detail: "cursor was issued for different filters",
		}
	}

	return payload, nil
}
