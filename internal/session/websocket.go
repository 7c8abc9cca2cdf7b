package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ashureev/alexi/internal/agent"
	"github.com/ashureev/alexi/internal/domain"
	"github.com/ashureev/alexi/internal/identity"
	"github.com/ashureev/alexi/internal/progression"
	"github.com/ashureev/alexi/internal/store"
)

// Frame types.
const (
	FrameAnswer    = "answer"
	FrameCurrent   = "current"
	FramePing      = "ping"
	FrameSession   = "session"
	FrameQuestion  = "question"
	FrameFollowUp  = "follow_up"
	FrameExhausted = "exhausted"
	FrameError     = "error"
	FramePong      = "pong"
)

const writeTimeout = 10 * time.Second

// ClientFrame is a message from the browser.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerFrame is a message to the browser.
type ServerFrame struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id,omitempty"`
	Question  *domain.QuestionPointer `json:"question,omitempty"`
	Content   string                  `json:"content,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// Handler serves live question sessions.
type Handler struct {
	service        *agent.Service
	engine         *progression.Engine
	sm             *Manager
	allowedOrigins []string
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(service *agent.Service, engine *progression.Engine, sm *Manager, allowedOrigins []string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:        service,
		engine:         engine,
		sm:             sm,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		logger:         logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. It must run behind
// identity.Middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	h.logger.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.write(ctx, ws, ServerFrame{Type: FrameSession, SessionID: sessionID}); err != nil {
		return
	}
	if err := h.sendCurrent(ctx, ws, userID, false); err != nil {
		return
	}

	h.readLoop(ctx, ws, userID, sessionID)
	h.logger.Info("Question session ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		var msg ClientFrame
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed", "user_id", userID, "session_id", sessionID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}
		h.sm.Touch(userID, sessionID)

		var err error
		switch msg.Type {
		case FrameAnswer:
			err = h.handleAnswer(ctx, ws, userID, msg.Content)
		case FrameCurrent:
			err = h.sendCurrent(ctx, ws, userID, true)
		case FramePing:
			err = h.write(ctx, ws, ServerFrame{Type: FramePong})
		default:
			err = h.write(ctx, ws, ServerFrame{Type: FrameError, Error: "unknown_frame_type"})
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) handleAnswer(ctx context.Context, ws *websocket.Conn, userID, content string) error {
	turn, err := h.service.Respond(ctx, userID, content)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		return h.write(ctx, ws, ServerFrame{Type: FrameError, Error: "concurrent_update"})
	case errors.Is(err, agent.ErrAgentUnavailable):
		return h.write(ctx, ws, ServerFrame{Type: FrameError, Error: "agent_unavailable"})
	case err != nil:
		h.logger.Error("Failed to handle answer", "error", err, "user_id", userID)
		return h.write(ctx, ws, ServerFrame{Type: FrameError, Error: "internal_error"})
	}

	switch turn.Kind {
	case agent.TurnFollowUp:
		return h.write(ctx, ws, ServerFrame{Type: FrameFollowUp, Question: turn.Question, Content: turn.FollowUp})
	case agent.TurnExhausted:
		return h.write(ctx, ws, ServerFrame{Type: FrameExhausted})
	default:
		return h.write(ctx, ws, ServerFrame{Type: FrameQuestion, Question: turn.Question})
	}
}

// sendCurrent writes the user's current question. A user who has not
// started gets nothing on connect and a not_started error on request.
func (h *Handler) sendCurrent(ctx context.Context, ws *websocket.Conn, userID string, requested bool) error {
	p, err := h.engine.CurrentQuestion(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to read current question", "error", err, "user_id", userID)
		return h.write(ctx, ws, ServerFrame{Type: FrameError, Error: "internal_error"})
	}
	if p == nil {
		if !requested {
			return nil
		}
		return h.write(ctx, ws, ServerFrame{Type: FrameError, Error: "not_started"})
	}
	return h.write(ctx, ws, ServerFrame{Type: FrameQuestion, Question: p})
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, frame ServerFrame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, ws, frame); err != nil {
		h.logger.Debug("WebSocket write error", "error", err, "type", frame.Type)
		return err
	}
	return nil
}
