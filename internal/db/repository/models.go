package repository

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrHistoryNotFound = errors.New("history record not found")
)

// Status is the review decision recorded for a history entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ParseStatus accepts only the three stored values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// HistoryRecord is one persisted row of the history table.
type HistoryRecord struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	Question      string `json:"question"`
	Category      string `json:"category"`
	Type          string `json:"type"`
	Difficulty    string `json:"difficulty"`
	CorrectAnswer string `json:"correct_answer"`
	Status        Status `json:"status"`
}
