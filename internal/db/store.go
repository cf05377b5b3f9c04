package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Config describes the local SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	Retry       RetryPolicy
}

// Store owns the SQLite handle, the connection pool and the schema migrator.
// It is opened once at process start and closed with CloseAll at shutdown.
type Store struct {
	db       *sql.DB
	pool     *Pool
	migrator *goose.Provider
	retry    RetryPolicy
	logger   zerolog.Logger
}

// DSN builds the go-sqlite3 connection string: WAL journal, bounded lock
// wait, serialized (full mutex) mode and enforced foreign keys.
func DSN(path string, busyTimeout time.Duration) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	params.Set("_mutex", "full")
	params.Set("_foreign_keys", "on")
	return "file:" + path + "?" + params.Encode()
}

// Open connects to the SQLite file at cfg.Path and applies migrations.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	handle, err := sql.Open("sqlite3", DSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrator, err := NewMigrator(handle, logger)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("build migrator: %w", err)
	}

	s := New(handle, cfg.Retry, logger)
	s.migrator = migrator
	if err := s.Migrate(ctx); err != nil {
		_ = handle.Close()
		return nil, err
	}

	s.logger.Info().Str("path", cfg.Path).Msg("store ready")
	return s, nil
}

// New wraps an already opened handle without touching the schema.
func New(handle *sql.DB, policy RetryPolicy, logger zerolog.Logger) *Store {
	return &Store{
		db:     handle,
		pool:   NewPool(handle),
		retry:  policy.withDefaults(),
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Pool exposes the connection pool so request handlers can lease from it.
func (s *Store) Pool() *Pool {
	return s.pool
}

// WithConn runs fn on the connection leased to ctx. When ctx carries no
// lease, a one-shot lease is taken and released after fn returns.
func (s *Store) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if !s.pool.HasLease(ctx) {
		var release func()
		ctx, release = s.pool.Lease(ctx)
		defer release()
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, conn)
}

// Ping checks that a pooled connection still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

// Migrate creates missing tables and upgrades old ones. Safe to repeat.
func (s *Store) Migrate(ctx context.Context) error {
	if s.migrator == nil {
		return errors.New("store opened without a migrator")
	}
	results, err := s.migrator.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, res := range results {
		s.logger.Info().Int64("version", res.Source.Version).Dur("took", res.Duration).Msg("migration applied")
	}
	return nil
}

// ResetDatabase rolls every migration back and applies them again, leaving
// empty tables, then invalidates the connection leased to ctx. The version
// table is kept so the migrator's bookkeeping stays valid.
func (s *Store) ResetDatabase(ctx context.Context) error {
	if s.migrator == nil {
		return errors.New("store opened without a migrator")
	}
	if _, err := s.migrator.DownTo(ctx, 0); err != nil {
		return fmt.Errorf("reset: roll back schema: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := s.pool.Invalidate(ctx); err != nil {
		return fmt.Errorf("reset: invalidate connection: %w", err)
	}
	s.logger.Warn().Msg("store reset")
	return nil
}

// CloseAll closes every pooled connection, the one leased to ctx, and the
// underlying handle.
func (s *Store) CloseAll(ctx context.Context) error {
	err := errors.Join(s.pool.CloseAll(ctx), s.db.Close())
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
