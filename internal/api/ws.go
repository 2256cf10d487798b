package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/dietnavigator/nutrition-chat/internal/chat"
	"github.com/dietnavigator/nutrition-chat/internal/identity"
	"github.com/dietnavigator/nutrition-chat/internal/session"
	"github.com/go-chi/chi/v5"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 10 * time.Second
)

// Limiter decides whether a visitor may send another prompt.
type Limiter interface {
	Allow(key string) bool
}

// wsFrame is both the client prompt and the server reply envelope.
type wsFrame struct {
	Type   string `json:"type,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ChatSocket streams text-only chat turns over a WebSocket.
type ChatSocket struct {
	svc           ChatService
	limiter       Limiter
	allowedOrigin string
	isDev         bool
}

// NewChatSocket creates the socket handler. A nil limiter disables throttling.
func NewChatSocket(svc ChatService, limiter Limiter, allowedOrigin string, isDev bool) *ChatSocket {
	return &ChatSocket{svc: svc, limiter: limiter, allowedOrigin: allowedOrigin, isDev: isDev}
}

// RegisterRoutes registers the socket route.
func (h *ChatSocket) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	store := session.FromContext(r.Context())
	if store == nil {
		Error(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	// Cookie-backed stores can only write before the upgrade.
	pair, err := h.svc.Bind(r.Context(), store)
	if err != nil {
		slog.Error("Failed to bind agent session", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", pair.UserID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", pair.UserID)
		}
	}()
	ws.SetReadLimit(wsReadLimit)

	slog.Info("Chat socket opened", "user_id", pair.UserID, "session_id", pair.SessionID)
	h.readLoop(r.Context(), ws, store, rateKey(r, pair))
	slog.Info("Chat socket closed", "user_id", pair.UserID)
}

func (h *ChatSocket) readLoop(ctx context.Context, ws *websocket.Conn, store session.Store, key string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var in wsFrame
		if err := json.Unmarshal(data, &in); err != nil {
			if err := writeFrame(ctx, ws, wsFrame{Type: "error", Error: errInvalidBody.Error()}); err != nil {
				return
			}
			continue
		}

		if h.limiter != nil && !h.limiter.Allow(key) {
			if err := writeFrame(ctx, ws, wsFrame{Type: "error", Error: "rate limit exceeded"}); err != nil {
				return
			}
			continue
		}

		out := h.turn(ctx, ws, store, in.Prompt)
		if err := writeFrame(ctx, ws, out); err != nil {
			slog.Debug("Failed to write chat frame", "error", err)
			return
		}
	}
}

func (h *ChatSocket) turn(ctx context.Context, ws *websocket.Conn, store session.Store, prompt string) wsFrame {
	reply, err := h.svc.Stream(ctx, store, chat.Request{Prompt: prompt}, func(text string) error {
		return writeFrame(ctx, ws, wsFrame{Type: "delta", Text: text})
	})
	switch {
	case errors.Is(err, chat.ErrEmptyRequest):
		return wsFrame{Type: "error", Error: "Empty prompt"}
	case err != nil:
		slog.Error("Chat error", "error", err)
		return wsFrame{Type: "error", Error: err.Error()}
	}
	return wsFrame{Type: "reply", Text: reply}
}

func (h *ChatSocket) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f wsFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// rateKey prefers the identity visitor id, then the agent user id.
func rateKey(r *http.Request, pair session.Pair) string {
	if id := identity.VisitorIDFromContext(r.Context()); id != "" {
		return id
	}
	return pair.UserID
}
