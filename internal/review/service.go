package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/db/repository"
	"github.com/gokatarajesh/quiz-review/internal/metrics"
	"github.com/gokatarajesh/quiz-review/internal/question"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrQueueEmpty    = errors.New("no question under review")
)

type questionSource interface {
	Fetch(ctx context.Context, req question.FetchRequest) ([]question.Question, error)
}

type userStore interface {
	AddUser(ctx context.Context, username string) (bool, error)
	GetUserID(ctx context.Context, username string) (int64, error)
	EnsureUser(ctx context.Context, username string) (int64, error)
}

type historyStore interface {
	AddBatch(ctx context.Context, userID int64, qs []question.Question) ([]int64, error)
	UpdateQuestionStatus(ctx context.Context, id int64, status repository.Status) error
	GetHistory(ctx context.Context, id int64) (repository.HistoryRecord, error)
	GetHistoryByStatus(ctx context.Context, userID int64, status repository.Status) ([]repository.HistoryRecord, error)
}

type databaseResetter interface {
	ResetDatabase(ctx context.Context) error
}

// Notifier is told about every session change (WebSocket push).
type Notifier interface {
	SessionUpdated(sessionID uuid.UUID, snap Snapshot)
}

type nopNotifier struct{}

func (nopNotifier) SessionUpdated(uuid.UUID, Snapshot) {}

// Deps groups the collaborators of Service.
type Deps struct {
	Questions questionSource
	Users     userStore
	History   historyStore
	Sessions  SessionStore
	Artifacts *ArtifactStore
	Resetter  databaseResetter
	Notifier  Notifier
}

// Service drives the review workflow: batches, decisions, history.
type Service struct {
	questions questionSource
	users     userStore
	history   historyStore
	sessions  SessionStore
	artifacts *ArtifactStore
	resetter  databaseResetter
	notifier  Notifier
	logger    zerolog.Logger
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		questions: deps.Questions,
		users:     deps.Users,
		history:   deps.History,
		sessions:  deps.Sessions,
		artifacts: deps.Artifacts,
		resetter:  deps.Resetter,
		notifier:  notifier,
		logger:    logger.With().Str("component", "review_service").Logger(),
	}
}

// SetNotifier swaps the session change listener.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// StartSession signs a reviewer in. An empty name or "0" selects the
// default reviewer; any other name must be new.
func (s *Service) StartSession(ctx context.Context, username string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = repository.DefaultUsername
	}

	var (
		userID int64
		err    error
	)
	if username == repository.DefaultUsername {
		userID, err = s.users.EnsureUser(ctx, username)
	} else {
		var created bool
		created, err = s.users.AddUser(ctx, username)
		if err == nil && !created {
			return nil, ErrUsernameTaken
		}
		if err == nil {
			userID, err = s.users.GetUserID(ctx, username)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("sign in %q: %w", username, err)
	}

	sess := NewSession(userID, username)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info().Str("session_id", sess.ID.String()).Str("username", username).Msg("review session started")
	return sess, nil
}

// Snapshot returns the current view of a session.
func (s *Service) Snapshot(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Fetch loads a new batch, records every question as pending, and replaces
// the session queue. The previous batch is dropped; its records stay pending.
func (s *Service) Fetch(ctx context.Context, sessionID uuid.UUID, req question.FetchRequest) (Snapshot, error) {
	return s.mutate(ctx, sessionID, func(ctx context.Context, sess *Session) error {
		batch, err := s.questions.Fetch(ctx, req)
		if err != nil {
			return err
		}
		ids, err := s.history.AddBatch(ctx, sess.UserID, batch)
		if err != nil {
			return err
		}
		for i := range batch {
			batch[i].HistoryID = ids[i]
		}
		sess.Replace(batch)
		s.logger.Info().Str("session_id", sess.ID.String()).Int("questions", len(batch)).Msg("batch loaded")
		return nil
	})
}

// Accept marks the current question accepted, saves its capture, and
// removes it from the queue.
func (s *Service) Accept(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	return s.mutate(ctx, sessionID, func(ctx context.Context, sess *Session) error {
		q, ok := sess.Current()
		if !ok {
			return ErrQueueEmpty
		}
		if err := s.history.UpdateQuestionStatus(ctx, q.HistoryID, repository.StatusAccepted); err != nil {
			return err
		}
		card, err := RenderCard(q)
		if err != nil {
			return err
		}
		path, err := s.artifacts.Save(q.HistoryID, card)
		if err != nil {
			return err
		}
		sess.RemoveCurrent()
		metrics.Decisions.WithLabelValues(string(repository.StatusAccepted), "accept").Inc()
		s.logger.Debug().Int64("history_id", q.HistoryID).Str("capture", path).Msg("question accepted")
		return nil
	})
}

// Reject marks the current question rejected and removes it from the queue.
func (s *Service) Reject(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	return s.mutate(ctx, sessionID, func(ctx context.Context, sess *Session) error {
		q, ok := sess.Current()
		if !ok {
			return ErrQueueEmpty
		}
		if err := s.history.UpdateQuestionStatus(ctx, q.HistoryID, repository.StatusRejected); err != nil {
			return err
		}
		sess.RemoveCurrent()
		metrics.Decisions.WithLabelValues(string(repository.StatusRejected), "reject").Inc()
		return nil
	})
}

func (s *Service) Next(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	return s.mutate(ctx, sessionID, func(_ context.Context, sess *Session) error {
		sess.Next()
		return nil
	})
}

func (s *Service) Previous(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	return s.mutate(ctx, sessionID, func(_ context.Context, sess *Session) error {
		sess.Previous()
		return nil
	})
}

// History lists the session user's records with status, oldest first.
func (s *Service) History(ctx context.Context, sessionID uuid.UUID, status repository.Status) ([]repository.HistoryRecord, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.history.GetHistoryByStatus(ctx, sess.UserID, status)
}

// Undo moves a rejected record back to accepted. The queue is untouched.
func (s *Service) Undo(ctx context.Context, sessionID uuid.UUID, historyID int64) (repository.HistoryRecord, error) {
	return s.setStatus(ctx, sessionID, historyID, repository.StatusAccepted, "undo")
}

// Remove moves an accepted record to rejected. The queue is untouched and
// any saved capture is kept.
func (s *Service) Remove(ctx context.Context, sessionID uuid.UUID, historyID int64) (repository.HistoryRecord, error) {
	return s.setStatus(ctx, sessionID, historyID, repository.StatusRejected, "remove")
}

func (s *Service) setStatus(ctx context.Context, sessionID uuid.UUID, historyID int64, status repository.Status, action string) (repository.HistoryRecord, error) {
	var rec repository.HistoryRecord
	err := s.locked(ctx, sessionID, func(ctx context.Context, sess *Session) error {
		var err error
		rec, err = s.owned(ctx, sess, historyID)
		if err != nil {
			return err
		}
		if err := s.history.UpdateQuestionStatus(ctx, historyID, status); err != nil {
			return err
		}
		rec.Status = status
		return nil
	})
	if err != nil {
		return repository.HistoryRecord{}, err
	}
	metrics.Decisions.WithLabelValues(string(status), action).Inc()
	return rec, nil
}

// Capture opens the saved PNG of one of the session user's records.
func (s *Service) Capture(ctx context.Context, sessionID uuid.UUID, historyID int64) (*os.File, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, sess, historyID); err != nil {
		return nil, err
	}
	return s.artifacts.Open(historyID)
}

// Reset drops and recreates the store and forgets every session.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.resetter.ResetDatabase(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	if err := s.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	s.logger.Warn().Msg("review data reset")
	return nil
}

// owned loads a record and hides records of other users as not found.
func (s *Service) owned(ctx context.Context, sess *Session, historyID int64) (repository.HistoryRecord, error) {
	rec, err := s.history.GetHistory(ctx, historyID)
	if err != nil {
		return repository.HistoryRecord{}, err
	}
	if rec.UserID != sess.UserID {
		return repository.HistoryRecord{}, repository.ErrHistoryNotFound
	}
	return rec, nil
}

// locked runs fn while holding the session lock.
func (s *Service) locked(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context, sess *Session) error) error {
	unlock, err := s.sessions.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("release session lock")
		}
	}()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return fn(ctx, sess)
}

// mutate is locked plus persisting the session and notifying listeners.
// When fn fails the stored session is left as it was.
func (s *Service) mutate(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context, sess *Session) error) (Snapshot, error) {
	var snap Snapshot
	err := s.locked(ctx, sessionID, func(ctx context.Context, sess *Session) error {
		if err := fn(ctx, sess); err != nil {
			return err
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.notifier.SessionUpdated(sessionID, snap)
	return snap, nil
}
