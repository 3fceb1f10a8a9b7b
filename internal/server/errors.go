package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/Sternrassler/astro-gateway/internal/catalog"
	"github.com/Sternrassler/astro-gateway/internal/feeds"
	"github.com/Sternrassler/astro-gateway/internal/search"
	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/logging"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
	"github.com/Sternrassler/astro-gateway/pkg/ratelimit"
)

// StatusClientClosedRequest is recorded when the caller went away before
// the response was ready. Nothing is written to the connection.
const StatusClientClosedRequest = 499

// Problem is the JSON error envelope.
type Problem struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError maps err onto a status code and a client safe message.
// Upstream error text never reaches the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context(), s.logger)

	var (
		cursorErr *pagination.CursorError
		fetchErr  *client.FetchError
	)
	switch {
	case r.Context().Err() != nil,
		errors.Is(err, client.ErrCancelled),
		errors.Is(err, context.Canceled):
		logger.Debug().Err(err).Msg("Request cancelled by client")
		w.WriteHeader(StatusClientClosedRequest)

	case errors.As(err, &cursorErr):
		s.writeProblemReason(w, r, http.StatusBadRequest, "invalid_cursor", "pagination token invalid", string(cursorErr.Reason))

	case errors.Is(err, pagination.ErrPaginationConflict):
		s.writeProblem(w, r, http.StatusBadRequest, "pagination_conflict", err.Error())

	case errors.Is(err, pagination.ErrInvalidParam),
		errors.Is(err, catalog.ErrUnknownFilter),
		errors.Is(err, search.ErrInvalidQuery),
		errors.Is(err, feeds.ErrInvalidFilter):
		s.writeProblem(w, r, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, feeds.ErrUnknownFeed):
		s.writeProblem(w, r, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, ratelimit.ErrQuotaExceeded):
		s.writeProblem(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")

	case errors.As(err, &fetchErr):
		logger.Warn().
			Err(err).
			Str("class", string(fetchErr.Class)).
			Int("attempts", fetchErr.Attempts).
			Msg("Data source request failed")
		if fetchErr.RetryAfter > 0 {
			secs := int(math.Ceil(fetchErr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}
		s.writeProblem(w, r, http.StatusServiceUnavailable, "unavailable", "data source unavailable")

	default:
		logger.Error().Err(err).Msg("Request failed")
		s.writeProblem(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) writeProblem(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeProblemReason(w, r, status, code, message, "")
}

func (s *Server) writeProblemReason(w http.ResponseWriter, r *http.Request, status int, code, message, reason string) {
	s.writeJSON(w, r, status, Problem{
		Code:      code,
		Message:   message,
		Reason:    reason,
		RequestID: RequestIDFrom(r.Context()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.FromContext(r.Context(), s.logger)
		logger.Debug().Err(err).Msg("Failed to write response")
	}
}
