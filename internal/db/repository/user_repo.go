package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gokatarajesh/quiz-review/internal/db"
)

// DefaultUsername is the reviewer used when no name is given.
const DefaultUsername = "0"

type connStore interface {
	WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error
	WithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

var _ connStore = (*db.Store)(nil)

// UserRepository exposes typed DB operations on the users table.
type UserRepository struct {
	store connStore
}

// NewUserRepository wraps a store for user-specific operations.
func NewUserRepository(store connStore) *UserRepository {
	return &UserRepository{store: store}
}

// AddUser inserts username. It reports false with a nil error when the name
// is already taken.
func (r *UserRepository) AddUser(ctx context.Context, username string) (bool, error) {
	err := r.store.WithRetry(ctx, "add_user", func(ctx context.Context) error {
		return r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			_, err := conn.ExecContext(ctx, `INSERT INTO users (username) VALUES (?)`, username)
			return err
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("add user: %w", err)
	}
	return true, nil
}

// GetUserID looks up the id of username.
func (r *UserRepository) GetUserID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get user id: %w", err)
	}
	return id, nil
}

// EnsureUser returns the id of username, creating the row if needed.
func (r *UserRepository) EnsureUser(ctx context.Context, username string) (int64, error) {
	err := r.store.WithRetry(ctx, "ensure_user", func(ctx context.Context) error {
		return r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			_, err := conn.ExecContext(ctx, `INSERT INTO users (username) VALUES (?) ON CONFLICT(username) DO NOTHING`, username)
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	return r.GetUserID(ctx, username)
}
