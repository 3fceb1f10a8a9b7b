// Package server exposes the gateway over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/astro-gateway/internal/catalog"
	"github.com/Sternrassler/astro-gateway/internal/feeds"
	"github.com/Sternrassler/astro-gateway/internal/search"
	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
	"github.com/Sternrassler/astro-gateway/pkg/ratelimit"
)

// Browser pages through the local catalog.
type Browser interface {
	Browse(ctx context.Context, req pagination.Request) (*pagination.Page[catalog.Body], error)
}

// Searcher runs upstream object searches.
type Searcher interface {
	Search(ctx context.Context, req pagination.Request) (*pagination.Page[search.Match], client.Outcome, error)
}

// FeedLister pages through upstream event feeds.
type FeedLister interface {
	Feeds() []string
	List(ctx context.Context, feed string, req pagination.Request) (*pagination.Page[feeds.Event], error)
}

// ReadyCheck is one dependency probed by /ready. A failing required check
// makes the gateway not ready; optional checks only mark it degraded.
type ReadyCheck struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// Config holds the listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the services the routes dispatch to. Nil services leave their
// routes unregistered.
type Deps struct {
	Catalog Browser
	Search  Searcher
	Feeds   FeedLister

	Limiter    *ratelimit.Limiter
	Identifier *ratelimit.Identifier

	ReadyChecks []ReadyCheck
}

// Server is the gateway HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger
}

// New creates the server and registers its routes.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Limiter == nil || deps.Identifier == nil {
		return nil, errors.New("server: limiter and identifier are required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		logger: logger.With().Str("component", "server").Logger(),
	}

	// RequestID → Metrics → Logging → Recovery
	s.router.Use(s.requestID)
	s.router.Use(requestMetrics)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recovery)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeProblem(w, r, http.StatusNotFound, "not_found", "the requested resource was not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeProblem(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "the requested method is not allowed for this resource")
	})

	s.registerRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server
// stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
