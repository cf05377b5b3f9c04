package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/quiz-review/internal/metrics"
)

// ErrStoreLocked is returned when a write stays blocked by another writer
// after the whole retry budget.
var ErrStoreLocked = errors.New("store is locked")

// IsLocked reports whether err is SQLite's busy/locked condition.
func IsLocked(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// RetryPolicy bounds how long a write keeps retrying while the store is locked.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 5
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	return p
}

// WithRetry runs fn, sleeping the fixed backoff and retrying while it fails
// with a lock error. Other errors return immediately.
func (s *Store) WithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(s.retry.Attempts-1), retry.NewConstant(s.retry.Backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err != nil && IsLocked(err) {
			metrics.LockRetries.WithLabelValues(op).Inc()
			s.logger.Debug().Err(err).Str("op", op).Int("attempt", attempts).Msg("store locked, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && IsLocked(err) {
		metrics.LockFailures.WithLabelValues(op).Inc()
		s.logger.Warn().Err(err).Str("op", op).Int("attempts", attempts).Msg("store lock retries exhausted")
		return fmt.Errorf("%s after %d attempts: %w: %w", op, attempts, ErrStoreLocked, err)
	}
	return err
}
