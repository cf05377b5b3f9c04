package review

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-review/internal/question"
)

// Session is the server-side review state of one signed-in reviewer: the
// current batch and the cursor into it.
type Session struct {
	ID        uuid.UUID           `json:"id"`
	UserID    int64               `json:"user_id"`
	Username  string              `json:"username"`
	Queue     []question.Question `json:"queue"`
	Cursor    int                 `json:"cursor"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func NewSession(userID int64, username string) *Session {
	return &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Username:  username,
		Queue:     []question.Question{},
		UpdatedAt: time.Now().UTC(),
	}
}

// Current returns the question under the cursor.
func (s *Session) Current() (question.Question, bool) {
	if len(s.Queue) == 0 {
		return question.Question{}, false
	}
	return s.Queue[s.Cursor], true
}

// Replace swaps in a new batch and rewinds the cursor.
func (s *Session) Replace(batch []question.Question) {
	s.Queue = append([]question.Question{}, batch...)
	s.Cursor = 0
	s.touch()
}

// Next moves forward one question; no-op on the last one.
func (s *Session) Next() bool {
	if s.Cursor >= len(s.Queue)-1 {
		return false
	}
	s.Cursor++
	s.touch()
	return true
}

// Previous moves back one question; no-op on the first one.
func (s *Session) Previous() bool {
	if s.Cursor <= 0 {
		return false
	}
	s.Cursor--
	s.touch()
	return true
}

// RemoveCurrent drops the question under the cursor and re-clamps.
func (s *Session) RemoveCurrent() (question.Question, bool) {
	q, ok := s.Current()
	if !ok {
		return question.Question{}, false
	}
	s.Queue = append(s.Queue[:s.Cursor:s.Cursor], s.Queue[s.Cursor+1:]...)
	s.clamp()
	s.touch()
	return q, true
}

// clamp keeps the cursor inside [0, len-1]; 0 for an empty queue.
func (s *Session) clamp() {
	if s.Cursor > len(s.Queue)-1 {
		s.Cursor = len(s.Queue) - 1
	}
	if s.Cursor < 0 {
		s.Cursor = 0
	}
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// QuestionView is a question as shown to the reviewer.
type QuestionView struct {
	HistoryID     int64    `json:"history_id"`
	Category      string   `json:"category"`
	Type          string   `json:"type"`
	Difficulty    string   `json:"difficulty"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Snapshot is the client-facing view of a session.
type Snapshot struct {
	SessionID   string        `json:"session_id"`
	Username    string        `json:"username"`
	Cursor      int           `json:"cursor"`
	Remaining   int           `json:"remaining"`
	Current     *QuestionView `json:"current,omitempty"`
	HasPrevious bool          `json:"has_previous"`
	HasNext     bool          `json:"has_next"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   s.ID.String(),
		Username:    s.Username,
		Cursor:      s.Cursor,
		Remaining:   len(s.Queue),
		HasPrevious: s.Cursor > 0,
		HasNext:     s.Cursor < len(s.Queue)-1,
	}
	if q, ok := s.Current(); ok {
		snap.Current = &QuestionView{
			HistoryID:     q.HistoryID,
			Category:      q.Category,
			Type:          q.Type,
			Difficulty:    q.Difficulty,
			Question:      q.Question,
			Options:       q.Options(),
			CorrectAnswer: q.CorrectAnswer,
		}
	}
	return snap
}
