package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gokatarajesh/quiz-review/internal/question"
)

const historyColumns = `id, user_id, question, category, type, difficulty, correct_answer, status`

// HistoryRepository reads and writes review history.
type HistoryRepository struct {
	store connStore
}

func NewHistoryRepository(store connStore) *HistoryRepository {
	return &HistoryRepository{store: store}
}

// AddQuestionHistory stores q as pending for userID and returns the new id.
func (r *HistoryRepository) AddQuestionHistory(ctx context.Context, userID int64, q question.Question) (int64, error) {
	var id int64
	err := r.store.WithRetry(ctx, "add_history", func(ctx context.Context) error {
		return r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			var err error
			id, err = insertHistory(ctx, conn, userID, q)
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("add question history: %w", err)
	}
	return id, nil
}

// AddBatch stores a whole fetched batch in one transaction and returns the
// ids in input order.
func (r *HistoryRepository) AddBatch(ctx context.Context, userID int64, qs []question.Question) ([]int64, error) {
	var ids []int64
	err := r.store.WithRetry(ctx, "add_history_batch", func(ctx context.Context) error {
		return r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			tx, err := conn.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback()

			ids = make([]int64, 0, len(qs))
			for _, q := range qs {
				id, err := insertHistory(ctx, tx, userID, q)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return tx.Commit()
		})
	})
	if err != nil {
		return nil, fmt.Errorf("add history batch: %w", err)
	}
	return ids, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHistory(ctx context.Context, e execer, userID int64, q question.Question) (int64, error) {
	res, err := e.ExecContext(ctx, `
		INSERT INTO history (user_id, question, category, type, difficulty, correct_answer, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, q.Question, q.Category, q.Type, q.Difficulty, q.CorrectAnswer, string(StatusPending))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateQuestionStatus sets the status of record id, retrying while the
// store is locked.
func (r *HistoryRepository) UpdateQuestionStatus(ctx context.Context, id int64, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	var affected int64
	err := r.store.WithRetry(ctx, "update_status", func(ctx context.Context) error {
		return r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			res, err := conn.ExecContext(ctx, `UPDATE history SET status = ? WHERE id = ?`, string(status), id)
			if err != nil {
				return err
			}
			affected, err = res.RowsAffected()
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("update question status: %w", err)
	}
	if affected == 0 {
		return ErrHistoryNotFound
	}
	return nil
}

// GetHistoryByStatus lists the user's records with status, oldest first.
func (r *HistoryRepository) GetHistoryByStatus(ctx context.Context, userID int64, status Status) ([]HistoryRecord, error) {
	return r.list(ctx, `SELECT `+historyColumns+` FROM history WHERE user_id = ? AND status = ? ORDER BY id`, userID, string(status))
}

// GetUserHistory lists every record of the user, oldest first.
func (r *HistoryRepository) GetUserHistory(ctx context.Context, userID int64) ([]HistoryRecord, error) {
	return r.list(ctx, `SELECT `+historyColumns+` FROM history WHERE user_id = ? ORDER BY id`, userID)
}

// GetHistory fetches a single record.
func (r *HistoryRepository) GetHistory(ctx context.Context, id int64) (HistoryRecord, error) {
	var rec HistoryRecord
	err := r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
		return scanHistory(row, &rec)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return HistoryRecord{}, ErrHistoryNotFound
	}
	if err != nil {
		return HistoryRecord{}, fmt.Errorf("get history: %w", err)
	}
	return rec, nil
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...any) ([]HistoryRecord, error) {
	records := []HistoryRecord{}
	err := r.store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rec HistoryRecord
			if err := scanHistory(rows, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner, rec *HistoryRecord) error {
	var (
		text, category, qType, difficulty sql.NullString
		answer, status                    sql.NullString
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &text, &category, &qType, &difficulty, &answer, &status); err != nil {
		return err
	}
	rec.Question = text.String
	rec.Category = category.String
	rec.Type = qType.String
	rec.Difficulty = difficulty.String
	rec.CorrectAnswer = answer.String
	rec.Status = StatusPending
	if status.Valid {
		rec.Status = Status(status.String)
	}
	return nil
}
