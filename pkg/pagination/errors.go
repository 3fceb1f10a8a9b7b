package pagination

import (
	"errors"
	"fmt"
)

// CursorErrorReason identifies why a cursor was rejected. The values are
// exposed to clients as diagnostic codes.
type CursorErrorReason string

const (
	ReasonMalformed       CursorErrorReason = "MALFORMED"
	ReasonVersionMismatch CursorErrorReason = "VERSION_MISMATCH"
	ReasonSortMismatch    CursorErrorReason = "SORT_MISMATCH"
	ReasonFilterMismatch  CursorErrorReason = "FILTER_MISMATCH"
)

// CursorError is returned for every rejected cursor.
type CursorError struct {
	Reason CursorErrorReason
	Detail string
}

// Error implements the error interface.
func (e *CursorError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid cursor: %s", e.Reason)
	}
	return fmt.Sprintf("invalid cursor: %s: %s", e.Reason, e.Detail)
}

// Is matches any CursorError with the same reason, so the sentinel values
// below work with errors.Is regardless of Detail.
func (e *CursorError) Is(target error) bool {
	var other *CursorError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

// Sentinel cursor errors, one per rejection reason.
var (
	ErrCursorMalformed       = &CursorError{Reason: ReasonMalformed}
	ErrCursorVersionMismatch = &CursorError{Reason: ReasonVersionMismatch}
	ErrCursorSortMismatch    = &CursorError{Reason: ReasonSortMismatch}
	ErrCursorFilterMismatch  = &CursorError{Reason: ReasonFilterMismatch}
)

// ErrPaginationConflict is returned when a request mixes cursor mode with
// offset mode signals.
var ErrPaginationConflict = errors.New("cursor and offset pagination parameters cannot be combined")

// ErrInvalidParam is returned for unparsable or out of range paging parameters.
var ErrInvalidParam = errors.New("invalid pagination parameter")

func malformed(detail string) error {
	return &CursorError{Reason: ReasonMalformed, Detail: detail}
}

// ReasonOf returns the rejection reason of err, or "" when err is not a
// cursor error.
func ReasonOf(err error) CursorErrorReason {
	var ce *CursorError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}
