package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/metrics"
	"github.com/gokatarajesh/quiz-review/internal/server"
	httperrors "github.com/gokatarajesh/quiz-review/pkg/http/errors"
	"github.com/gokatarajesh/quiz-review/pkg/http/ws"
)

// HubNotifier pushes session snapshots to the session's WebSocket, if any.
type HubNotifier struct {
	hub    *ws.Hub
	logger zerolog.Logger
}

func NewHubNotifier(hub *ws.Hub, logger zerolog.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

func (n *HubNotifier) SessionUpdated(sessionID uuid.UUID, snap Snapshot) {
	err := n.hub.Publish(sessionID, ws.TypeSessionUpdate, snap)
	if err != nil && !errors.Is(err, ws.ErrConnectionNotFound) {
		n.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("session update not delivered")
	}
}

// HandleWebSocket handles GET /ws/review. The token may be passed as
// ?token= since browsers cannot set headers on upgrade requests.
func (h *HTTPHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	// Refuse upgrades for sessions that no longer exist (expired or reset).
	snap, err := h.service.Snapshot(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(context.WithoutCancel(r.Context()), sessionID, ws.NewConnection(conn, h.logger), snap)
}

// HandleConnection serves one registered socket until the peer leaves.
func (h *HTTPHandlers) HandleConnection(ctx context.Context, sessionID uuid.UUID, conn *ws.Connection, initial Snapshot) {
	h.hub.Register(sessionID, conn)
	metrics.ActiveSockets.Inc()
	defer func() {
		h.hub.Unregister(sessionID, conn)
		metrics.ActiveSockets.Dec()
	}()

	go conn.WritePump()

	if err := h.hub.Publish(sessionID, ws.TypeSessionUpdate, initial); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("initial snapshot not delivered")
	}

	conn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(ctx, sessionID, conn, msg)
	})
}

func (h *HTTPHandlers) handleMessage(ctx context.Context, sessionID uuid.UUID, conn *ws.Connection, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeRequestSnapshot:
		snap, err := h.service.Snapshot(ctx, sessionID)
		if err != nil {
			return h.sendError(conn, msg.RequestID, httperrors.ErrCodeSessionExpired, "Session expired, sign in again")
		}
		return h.reply(conn, ws.TypeSessionUpdate, msg.RequestID, snap)
	case ws.TypePing:
		return h.reply(conn, ws.TypePong, msg.RequestID, struct{}{})
	default:
		return h.sendError(conn, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *HTTPHandlers) reply(conn *ws.Connection, msgType, requestID string, payload interface{}) error {
	out, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	out.RequestID = requestID
	return conn.Send(out)
}

func (h *HTTPHandlers) sendError(conn *ws.Connection, requestID, code, message string) error {
	return h.reply(conn, ws.TypeError, requestID, ws.ErrorPayload{Code: code, Message: message})
}
