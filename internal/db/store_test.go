package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "quiz.db")
	}
	s, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.CloseAll(context.Background()) })
	return s
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	err := s.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func insertUser(ctx context.Context, s *Store, name string) error {
	return s.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `INSERT INTO users (username) VALUES (?)`, name)
		return err
	})
}

// holdWriteLock takes SQLite's write lock on a separate pooled connection and
// returns a func that rolls it back.
func holdWriteLock(t *testing.T, s *Store) func() {
	t.Helper()
	ctx := context.Background()
	holder, err := s.Pool().Acquire(ctx)
	require.NoError(t, err)
	_, err = holder.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	var once atomic.Bool
	return func() {
		if once.Swap(true) {
			return
		}
		_, _ = holder.ExecContext(ctx, "ROLLBACK")
		s.Pool().Put(holder)
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/quiz.db", 30*time.Second)

	assert.Contains(t, dsn, "file:/tmp/quiz.db?")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=30000")
	assert.Contains(t, dsn, "_mutex=full")
	assert.Contains(t, dsn, "_foreign_keys=on")
}

func TestOpenCreatesSchemaAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.db")

	first, err := Open(context.Background(), Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, insertUser(context.Background(), first, "alice"))
	require.NoError(t, first.CloseAll(context.Background()))

	second := openTestStore(t, Config{Path: path})
	assert.Equal(t, 1, countRows(t, second, "users"))
	assert.Equal(t, 0, countRows(t, second, "history"))
}

func TestOpenAddsStatusColumnToLegacyHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT UNIQUE NOT NULL);
		CREATE TABLE history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			question TEXT,
			category TEXT,
			type TEXT,
			difficulty TEXT,
			correct_answer TEXT
		);
		INSERT INTO users (username) VALUES ('old');
		INSERT INTO history (user_id, question) VALUES (1, 'Legacy question?');`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s := openTestStore(t, Config{Path: path})

	var status string
	err = s.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT status FROM history WHERE id = 1`).Scan(&status)
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", status)
}

func TestPoolReusesLeasedConnection(t *testing.T) {
	s := openTestStore(t, Config{})
	pool := s.Pool()

	ctx, release := pool.Lease(context.Background())
	first, err := pool.Acquire(ctx)
	require.NoError(t, err)
	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, pool.Stats().Leased)

	release()
	stats := pool.Stats()
	assert.Equal(t, 0, stats.Leased)
	assert.GreaterOrEqual(t, stats.Idle, 1)

	next, releaseNext := pool.Lease(context.Background())
	defer releaseNext()
	reused, err := pool.Acquire(next)
	require.NoError(t, err)
	assert.Same(t, first, reused, "released connection should come back from the free list")
}

func TestPoolLeasesAreExclusive(t *testing.T) {
	s := openTestStore(t, Config{})
	pool := s.Pool()

	ctxA, releaseA := pool.Lease(context.Background())
	defer releaseA()
	ctxB, releaseB := pool.Lease(context.Background())
	defer releaseB()

	a, err := pool.Acquire(ctxA)
	require.NoError(t, err)
	b, err := pool.Acquire(ctxB)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, pool.Stats().Leased)
}

func TestPoolReleaseWithoutBindingIsNoop(t *testing.T) {
	s := openTestStore(t, Config{})
	pool := s.Pool()
	before := pool.Stats()

	pool.Release(context.Background())
	ctx, release := pool.Lease(context.Background())
	pool.Release(ctx)
	release()

	assert.Equal(t, before, pool.Stats())
}

func TestCloseAllDrainsPool(t *testing.T) {
	s := openTestStore(t, Config{})
	pool := s.Pool()

	ctx, release := pool.Lease(context.Background())
	_, err := pool.Acquire(ctx)
	require.NoError(t, err)
	other, releaseOther := pool.Lease(context.Background())
	_, err = pool.Acquire(other)
	require.NoError(t, err)
	releaseOther()

	require.NoError(t, s.CloseAll(ctx))
	release()

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, 0, stats.Open)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestResetDropsDataAndInvalidatesLeasedConnection(t *testing.T) {
	s := openTestStore(t, Config{})
	require.NoError(t, insertUser(context.Background(), s, "alice"))

	ctx, release := s.Pool().Lease(context.Background())
	defer release()
	before, err := s.Pool().Acquire(ctx)
	require.NoError(t, err)
	openBefore := s.Pool().Stats().Open

	require.NoError(t, s.ResetDatabase(ctx))

	assert.Equal(t, openBefore-1, s.Pool().Stats().Open)
	after, err := s.Pool().Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, 0, countRows(t, s, "users"))

	require.NoError(t, insertUser(ctx, s, "alice"), "schema should be usable after reset")
}

func TestResetCanRepeatAndKeepsSchemaUsable(t *testing.T) {
	s := openTestStore(t, Config{})
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, insertUser(ctx, s, name))
		require.NoError(t, s.ResetDatabase(ctx))
		assert.Equal(t, 0, countRows(t, s, "users"))
	}

	require.NoError(t, insertUser(ctx, s, "dave"))
	err := s.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO history (user_id, question, status) SELECT id, 'q', 'accepted' FROM users WHERE username = 'dave'`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, s, "history"))

	stats := s.Pool().Stats()
	assert.Equal(t, 0, stats.Leased)
	assert.Equal(t, stats.Idle, stats.Open)
}

func TestUniqueViolationIsDetected(t *testing.T) {
	s := openTestStore(t, Config{})
	require.NoError(t, insertUser(context.Background(), s, "alice"))

	err := insertUser(context.Background(), s, "alice")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsLocked(err))
}

func TestWithRetryGivesUpAfterBudget(t *testing.T) {
	s := openTestStore(t, Config{Retry: RetryPolicy{Attempts: 3, Backoff: 5 * time.Millisecond}})
	unlock := holdWriteLock(t, s)
	defer unlock()

	var calls int
	err := s.WithRetry(context.Background(), "insert_user", func(ctx context.Context) error {
		calls++
		return insertUser(ctx, s, "blocked")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreLocked)
	assert.True(t, IsLocked(err))
	assert.Equal(t, 3, calls)
}

func TestWithRetrySucceedsOnceLockIsReleased(t *testing.T) {
	s := openTestStore(t, Config{Retry: RetryPolicy{Attempts: 20, Backoff: 10 * time.Millisecond}})
	unlock := holdWriteLock(t, s)
	go func() {
		time.Sleep(40 * time.Millisecond)
		unlock()
	}()

	var calls int
	err := s.WithRetry(context.Background(), "insert_user", func(ctx context.Context) error {
		calls++
		return insertUser(ctx, s, "eventually")
	})

	require.NoError(t, err)
	assert.Greater(t, calls, 1)
	assert.Equal(t, 1, countRows(t, s, "users"))
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	s := openTestStore(t, Config{Retry: RetryPolicy{Attempts: 5, Backoff: time.Millisecond}})
	boom := errors.New("boom")

	var calls int
	err := s.WithRetry(context.Background(), "noop", func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStoreLocked)
	assert.Equal(t, 1, calls)
}
