// Package app assembles the gateway from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/astro-gateway/internal/catalog"
	"github.com/Sternrassler/astro-gateway/internal/config"
	"github.com/Sternrassler/astro-gateway/internal/feeds"
	"github.com/Sternrassler/astro-gateway/internal/search"
	"github.com/Sternrassler/astro-gateway/internal/server"
	"github.com/Sternrassler/astro-gateway/pkg/cache"
	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/pagination"
	"github.com/Sternrassler/astro-gateway/pkg/ratelimit"
)

// RateLimitPrefix namespaces the limiter keys in Redis.
const RateLimitPrefix = "astro:ratelimit:"

const redisPingTimeout = 2 * time.Second

// App is an assembled gateway.
type App struct {
	Server  *server.Server
	Catalog *catalog.Store

	// Redis is nil when the coordination store is disabled or unreachable.
	Redis *redis.Client

	cfg     *config.Config
	closers []func() error
	logger  zerolog.Logger
}

// Build connects every dependency and wires the HTTP server. An unreachable
// Redis is not fatal: the cache is disabled and rate limits fall back to
// per-process windows.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := catalog.Open(ctx, cfg.Catalog.Driver, cfg.Catalog.DSN, client.Options{
		Timeout:     cfg.Upstream.Timeout,
		MaxAttempts: 1,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	a.Catalog = store
	a.closers = append(a.closers, store.Close)

	resultCache, windowStore := a.connectRedis(ctx)

	searchSvc, err := a.buildSearch(resultCache)
	if err != nil {
		return nil, err
	}
	feedSvc, err := a.buildFeeds()
	if err != nil {
		return nil, err
	}

	fallback, err := ratelimit.NewMemoryWindow(cfg.RateLimit.FallbackCapacity)
	if err != nil {
		return nil, fmt.Errorf("rate limit fallback: %w", err)
	}
	limiter, err := ratelimit.NewLimiter(windowStore, fallback, cfg.RateLimit.Policies(),
		ratelimit.WithLogger(logger.With().Str("component", "ratelimit").Logger()))
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	srv, err := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, server.Deps{
		Catalog:     store,
		Search:      searchSvc,
		Feeds:       feedSvc,
		Limiter:     limiter,
		Identifier:  ratelimit.NewIdentifier(cfg.RateLimit.Identity()),
		ReadyChecks: a.readyChecks(resultCache),
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Server = srv

	return a, nil
}

// connectRedis returns the shared cache and the limiter store, both
// disabled when Redis is off or does not answer a ping.
func (a *App) connectRedis(ctx context.Context) (*cache.Manager, ratelimit.StoreHandle) {
	rc := a.cfg.Redis
	if !rc.Enabled {
		const reason = "redis disabled by configuration"
		return cache.Disabled(reason), ratelimit.Unavailable(reason)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        rc.Addr,
		Password:    rc.Password,
		DB:          rc.DB,
		DialTimeout: redisPingTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		reason := fmt.Sprintf("redis unreachable at %s", rc.Addr)
		a.logger.Warn().Err(err).Str("addr", rc.Addr).Msg("Redis unavailable, running without shared cache")
		return cache.Disabled(reason), ratelimit.Unavailable(reason)
	}

	a.logger.Info().Str("addr", rc.Addr).Msg("Connected to Redis")
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)
	return cache.NewManager(rdb), ratelimit.Connected(ratelimit.NewRedisWindow(rdb, RateLimitPrefix))
}

func (a *App) buildSearch(resultCache search.ResultCache) (*search.Service, error) {
	sc := a.cfg.Upstream.Search

	primary, err := client.New(a.cfg.Upstream.ClientConfig("sbdb-query", sc.BaseURL), a.logger)
	if err != nil {
		return nil, fmt.Errorf("search primary: %w", err)
	}

	secondaryURL := sc.SecondaryBaseURL
	if secondaryURL == "" {
		secondaryURL = sc.BaseURL
	}
	secondary, err := client.New(a.cfg.Upstream.ClientConfig("sbdb-lookup", secondaryURL), a.logger)
	if err != nil {
		return nil, fmt.Errorf("search secondary: %w", err)
	}

	return search.NewService(primary, secondary, resultCache, search.Config{
		PrimaryPath:   sc.PrimaryPath,
		SecondaryPath: sc.SecondaryPath,
		MaxCacheTTL:   sc.MaxCacheTTL,
	}, a.logger)
}

func (a *App) buildFeeds() (*feeds.Service, error) {
	fc := a.cfg.Upstream.Feeds

	upstream, err := client.New(a.cfg.Upstream.ClientConfig("feeds", fc.BaseURL), a.logger)
	if err != nil {
		return nil, fmt.Errorf("feeds upstream: %w", err)
	}

	return feeds.NewService(upstream, feeds.Config{
		Feeds:       fc.Paths,
		SnapshotTTL: fc.SnapshotTTL,
		Batch: pagination.BatchConfig{
			MaxConcurrency: fc.MaxConcurrency,
			Timeout:        a.cfg.Upstream.Timeout * time.Duration(max(a.cfg.Upstream.MaxAttempts, 1)),
			MaxPages:       fc.MaxPages,
		},
	}, a.logger)
}

func (a *App) readyChecks(resultCache *cache.Manager) []server.ReadyCheck {
	checks := []server.ReadyCheck{{
		Name:     "catalog",
		Required: true,
		Check:    a.Catalog.DB().PingContext,
	}}

	if !a.cfg.Redis.Enabled {
		return checks
	}
	redisCheck := func(ctx context.Context) error {
		if a.Redis == nil {
			return errors.New(resultCache.Reason())
		}
		return a.Redis.Ping(ctx).Err()
	}
	return append(checks, server.ReadyCheck{Name: "redis", Check: redisCheck})
}

// Close releases every connection in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
