package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sternrassler/astro-gateway/internal/catalog"
	"github.com/Sternrassler/astro-gateway/internal/feeds"
	"github.com/Sternrassler/astro-gateway/internal/search"
	"github.com/Sternrassler/astro-gateway/pkg/metrics"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
	"github.com/Sternrassler/astro-gateway/pkg/ratelimit"
)

// SearchSourceHeader reports which stage answered a search.
const SearchSourceHeader = "X-Search-Source"

const readyTimeout = 2 * time.Second

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		if s.deps.Catalog != nil {
			r.With(s.rateLimit(ratelimit.LimitBrowse)).Get("/bodies", s.handleBodies)
		}
		if s.deps.Search != nil {
			r.With(s.rateLimit(ratelimit.LimitSearch)).Get("/search", s.handleSearch)
		}
		if s.deps.Feeds != nil {
			r.Get("/feeds", s.handleFeedIndex)
			r.With(s.rateLimit(ratelimit.LimitFeed)).Get("/feeds/{feed}", s.handleFeed)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(s.deps.ReadyChecks))}
	status := http.StatusOK
	for _, c := range s.deps.ReadyChecks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = "unavailable"
			if c.Required {
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	s.writeJSON(w, r, status, resp)
}

func (s *Server) handleBodies(w http.ResponseWriter, r *http.Request) {
	req, err := pagination.ParseRequest(r.URL.Query(), catalog.PaginationOptions())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.deps.Catalog.Browse(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := pagination.ParseRequest(r.URL.Query(), search.PaginationOptions())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, outcome, err := s.deps.Search.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set(SearchSourceHeader, string(outcome))
	s.writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handleFeedIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string][]string{"feeds": s.deps.Feeds.Feeds()})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	req, err := pagination.ParseRequest(r.URL.Query(), feeds.PaginationOptions())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.deps.Feeds.List(r.Context(), chi.URLParam(r, "feed"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, page)
}
