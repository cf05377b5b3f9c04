package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/auth"
	"github.com/gokatarajesh/quiz-review/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-review/internal/db"
	"github.com/gokatarajesh/quiz-review/internal/db/repository"
	"github.com/gokatarajesh/quiz-review/internal/logging"
	"github.com/gokatarajesh/quiz-review/internal/question"
	"github.com/gokatarajesh/quiz-review/internal/question/external"
	httperrors "github.com/gokatarajesh/quiz-review/pkg/http/errors"
	"github.com/gokatarajesh/quiz-review/pkg/http/ws"
)

var validate = validator.New()

// HTTPHandlers provides REST and WebSocket endpoints for the review workflow.
type HTTPHandlers struct {
	service *Service
	tokens  *jwt.Manager
	hub     *ws.Hub
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for review endpoints.
func NewHTTPHandlers(service *Service, tokens *jwt.Manager, hub *ws.Hub, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		tokens:  tokens,
		hub:     hub,
		logger:  logger.With().Str("component", "review_http").Logger(),
	}
}

// Register mounts every review route on mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	protected := func(fn http.HandlerFunc) http.Handler {
		return auth.RequireSession(h.tokens, h.logger)(fn)
	}

	mux.HandleFunc("GET /v1/categories", h.ListCategories)
	mux.HandleFunc("POST /v1/sessions", h.SignIn)

	mux.Handle("GET /v1/review", protected(h.GetSnapshot))
	mux.Handle("POST /v1/review/fetch", protected(h.FetchQuestions))
	mux.Handle("POST /v1/review/next", protected(h.Next))
	mux.Handle("POST /v1/review/previous", protected(h.Previous))
	mux.Handle("POST /v1/review/accept", protected(h.Accept))
	mux.Handle("POST /v1/review/reject", protected(h.Reject))

	mux.Handle("GET /v1/history", protected(h.ListHistory))
	mux.Handle("POST /v1/history/{id}/undo", protected(h.Undo))
	mux.Handle("POST /v1/history/{id}/remove", protected(h.Remove))
	mux.Handle("GET /v1/history/{id}/capture", protected(h.Capture))

	mux.Handle("POST /v1/admin/reset", protected(h.Reset))

	mux.Handle("GET /ws/review", protected(h.HandleWebSocket))
}

type signInRequest struct {
	Username string `json:"username" validate:"max=64"`
}

type signInResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
	Session   Snapshot  `json:"session"`
}

type fetchRequest struct {
	Amount       int    `json:"amount"`
	Category     int    `json:"category"`
	CategoryName string `json:"category_name"`
	Difficulty   string `json:"difficulty"`
	Type         string `json:"type"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// ListCategories handles GET /v1/categories
func (h *HTTPHandlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	httperrors.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"categories":   question.Categories(),
		"difficulties": []string{question.DifficultyEasy, question.DifficultyMedium, question.DifficultyHard},
		"types":        []string{question.TypeMultiple, question.TypeBoolean},
	})
}

// SignIn handles POST /v1/sessions
func (h *HTTPHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		httperrors.RespondValidationError(w, "Invalid sign-in request", map[string]string{
			"username": "max=64",
		})
		return
	}

	sess, err := h.service.StartSession(r.Context(), req.Username)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	token, expires, err := h.tokens.Generate(jwt.Subject{
		UserID:    sess.UserID,
		Username:  sess.Username,
		SessionID: sess.ID,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("failed to sign session token")
		httperrors.RespondInternalError(w, "Failed to create session")
		return
	}

	httperrors.RespondJSON(w, http.StatusCreated, signInResponse{
		Token:     token,
		ExpiresAt: expires,
		UserID:    sess.UserID,
		Session:   sess.Snapshot(),
	})
}

// GetSnapshot handles GET /v1/review
func (h *HTTPHandlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, snap)
}

// FetchQuestions handles POST /v1/review/fetch
func (h *HTTPHandlers) FetchQuestions(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var body fetchRequest
	if err := decodeBody(r, &body); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	req := question.FetchRequest{
		Amount:     body.Amount,
		Category:   body.Category,
		Difficulty: body.Difficulty,
		Type:       body.Type,
	}
	if body.CategoryName != "" && body.Category == 0 {
		id, known := question.CategoryID(body.CategoryName)
		if !known {
			httperrors.RespondValidationError(w, "Invalid fetch request", map[string]string{
				"category_name": "unknown category",
			})
			return
		}
		req.Category = id
	}

	snap, err := h.service.Fetch(r.Context(), sessionID, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, snap)
}

// Next handles POST /v1/review/next
func (h *HTTPHandlers) Next(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Next)
}

// Previous handles POST /v1/review/previous
func (h *HTTPHandlers) Previous(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Previous)
}

// Accept handles POST /v1/review/accept
func (h *HTTPHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Accept)
}

// Reject handles POST /v1/review/reject
func (h *HTTPHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Reject)
}

// ListHistory handles GET /v1/history?status=accepted|rejected|pending
func (h *HTTPHandlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("status")
	if raw == "" {
		raw = string(repository.StatusAccepted)
	}
	status, err := repository.ParseStatus(raw)
	if err != nil {
		httperrors.RespondValidationError(w, "Invalid history filter", map[string]string{
			"status": "must be one of pending, accepted, rejected",
		})
		return
	}

	records, err := h.service.History(r.Context(), sessionID, status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"records": records,
	})
}

// Undo handles POST /v1/history/{id}/undo
func (h *HTTPHandlers) Undo(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Undo)
}

// Remove handles POST /v1/history/{id}/remove
func (h *HTTPHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Remove)
}

// Capture handles GET /v1/history/{id}/capture
func (h *HTTPHandlers) Capture(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	historyID, ok := historyIDFromPath(w, r)
	if !ok {
		return
	}

	f, err := h.service.Capture(r.Context(), sessionID, historyID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	name := fmt.Sprintf("question_%d.png", historyID)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// Reset handles POST /v1/admin/reset. The body must carry {"confirm": true}.
func (h *HTTPHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if !req.Confirm {
		httperrors.RespondValidationError(w, "Reset must be confirmed", map[string]string{
			"confirm": "must be true",
		})
		return
	}

	if err := h.service.Reset(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("reset failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeResetFailed, "Failed to reset review data")
		return
	}

	if h.hub != nil {
		if msg, err := ws.NewMessage(ws.TypeSessionReset, ws.SessionResetPayload{Reason: "database_reset"}); err == nil {
			_ = h.hub.BroadcastAll(msg)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandlers) step(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (Snapshot, error)) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	snap, err := op(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, snap)
}

func (h *HTTPHandlers) decide(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID, historyID int64) (repository.HistoryRecord, error)) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	historyID, ok := historyIDFromPath(w, r)
	if !ok {
		return
	}
	rec, err := op(r.Context(), sessionID, historyID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandlers) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return uuid.Nil, false
	}
	return claims.SessionID, true
}

func historyIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "History id must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// respondServiceError maps service errors onto HTTP responses.
func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *question.ValidationError
		remote     *external.RemoteFetchError
		code       *external.ResponseCodeError
	)

	switch {
	case errors.As(err, &validation):
		httperrors.RespondValidationError(w, "Invalid fetch request", validation.Fields)
	case errors.As(err, &remote), errors.As(err, &code):
		logging.FromContext(r.Context()).Warn().Err(err).Msg("question source failed")
		httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError, "Question source is unavailable")
	case errors.Is(err, ErrUsernameTaken):
		httperrors.RespondConflict(w, httperrors.ErrCodeUsernameTaken, "Username already taken. Please choose another one.")
	case errors.Is(err, ErrQueueEmpty):
		httperrors.RespondConflict(w, httperrors.ErrCodeQueueEmpty, "No question under review")
	case errors.Is(err, ErrSessionBusy):
		httperrors.RespondConflict(w, httperrors.ErrCodeSessionBusy, "Session is busy, retry shortly")
	case errors.Is(err, ErrSessionNotFound):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeSessionExpired, "Session expired, sign in again")
	case errors.Is(err, repository.ErrHistoryNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeHistoryNotFound, "History record not found")
	case errors.Is(err, ErrCaptureNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeCaptureNotFound, "Capture not found")
	case errors.Is(err, db.ErrStoreLocked):
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeStoreLocked, "Database is busy, retry shortly")
	default:
		logging.FromContext(r.Context()).Error().Err(err).Msg("review request failed")
		httperrors.RespondInternalError(w, "Internal server error")
	}
}
