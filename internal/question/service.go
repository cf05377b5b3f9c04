package question

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/metrics"
	"github.com/gokatarajesh/quiz-review/internal/question/external"
)

// ValidationError lists the rejected fields of a FetchRequest, keyed by
// JSON name, with the failed rule as value.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name, rule := range e.Fields {
		names = append(names, name+" ("+rule+")")
	}
	sort.Strings(names)
	return "invalid fetch request: " + strings.Join(names, ", ")
}

type opentdbProvider interface {
	Fetch(ctx context.Context, p external.FetchParams) ([]external.OpenTDBQuestion, error)
}

// Service validates fetch requests and normalizes what the trivia API returns.
type Service struct {
	opentdb  opentdbProvider
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(opentdb opentdbProvider, logger zerolog.Logger) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &Service{
		opentdb:  opentdb,
		validate: v,
		logger:   logger.With().Str("component", "question_service").Logger(),
	}
}

// Validate checks req against the fetch form bounds.
func (s *Service) Validate(req FetchRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return &ValidationError{Fields: fields}
}

// Fetch validates req and loads one batch from the trivia API. HistoryID is
// left zero; the caller assigns it once the batch is persisted.
func (s *Service) Fetch(ctx context.Context, req FetchRequest) ([]Question, error) {
	if err := s.Validate(req); err != nil {
		metrics.QuestionFetches.WithLabelValues("invalid").Inc()
		return nil, err
	}

	raw, err := s.opentdb.Fetch(ctx, external.FetchParams{
		Amount:     req.Amount,
		Category:   req.Category,
		Difficulty: req.Difficulty,
		Type:       req.Type,
	})
	if err != nil {
		metrics.QuestionFetches.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Int("amount", req.Amount).Msg("question fetch failed")
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	outcome := "ok"
	if len(raw) == 0 {
		outcome = "empty"
	}
	metrics.QuestionFetches.WithLabelValues(outcome).Inc()
	metrics.QuestionsFetched.Add(float64(len(raw)))

	out := make([]Question, 0, len(raw))
	for _, q := range raw {
		out = append(out, normalizeOpenTDB(q))
	}
	s.logger.Debug().Int("requested", req.Amount).Int("received", len(out)).Msg("questions fetched")
	return out, nil
}

func normalizeOpenTDB(q external.OpenTDBQuestion) Question {
	incorrect := q.IncorrectAnswers
	if incorrect == nil {
		incorrect = []string{}
	}
	return Question{
		Category:         q.Category,
		Type:             q.Type,
		Difficulty:       q.Difficulty,
		Question:         q.Question,
		CorrectAnswer:    q.CorrectAnswer,
		IncorrectAnswers: incorrect,
	}
}
