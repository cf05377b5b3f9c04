package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-review/internal/db"
	"github.com/gokatarajesh/quiz-review/internal/question"
)

func openStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(context.Background(), db.Config{
		Path:        filepath.Join(t.TempDir(), "quiz.db"),
		BusyTimeout: 5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.CloseAll(context.Background()) })
	return store
}

func mockStore(t *testing.T) (*db.Store, sqlmock.Sqlmock) {
	t.Helper()
	handle, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return db.New(handle, db.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, zerolog.Nop()), mock
}

func countUsers(t *testing.T, store *db.Store) int {
	t.Helper()
	var n int
	err := store.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func sampleQuestion(text string) question.Question {
	return question.Question{
		Category:         "Science: Computers",
		Type:             question.TypeMultiple,
		Difficulty:       question.DifficultyEasy,
		Question:         text,
		CorrectAnswer:    "Right",
		IncorrectAnswers: []string{"Wrong 1", "Wrong 2", "Wrong 3"},
	}
}
