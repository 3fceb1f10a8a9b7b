// Package catalog serves the relational orbital-body catalog with offset and
// keyset (cursor) pagination.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Sternrassler/astro-gateway/pkg/client"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DefaultDriver is the database/sql driver registered by modernc.org/sqlite.
const DefaultDriver = "sqlite"

// Store is the catalog backed by a relational database.
type Store struct {
	db      *sql.DB
	fetcher *client.Fetcher
	logger  zerolog.Logger
}

// Open connects to the catalog database and applies migrations.
// Use ":memory:" as dsn for an in-memory catalog.
func Open(ctx context.Context, driver, dsn string, opts client.Options, logger zerolog.Logger) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps in-memory databases alive and serializes
	// SQLite writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := New(db, opts, logger)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts client.Options, logger zerolog.Logger) *Store {
	logger = logger.With().Str("component", "catalog").Logger()
	return &Store{
		db:      db,
		fetcher: client.NewFetcher("catalog", opts, logger),
		logger:  logger,
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	goose.SetLogger(gooseLogger{s.logger})
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

// gooseLogger routes migration output through zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}
