package api

import (
	"log/slog"
	"net/http"

	"github.com/dietnavigator/nutrition-chat/internal/session"
	"github.com/go-chi/chi/v5"
)

// HomeHandler serves the chat page. Every page load starts a new remote
// conversation for the visitor.
type HomeHandler struct {
	svc  ChatService
	page []byte
}

// NewHomeHandler creates a home handler serving page.
func NewHomeHandler(svc ChatService, page []byte) *HomeHandler {
	return &HomeHandler{svc: svc, page: page}
}

// RegisterRoutes registers the page route.
func (h *HomeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ServeHTTP)
}

// ServeHTTP clears the cached session id and writes the page.
func (h *HomeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if store := session.FromContext(r.Context()); store != nil {
		if err := h.svc.Reset(r.Context(), store); err != nil {
			slog.Warn("Failed to reset agent session", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.page); err != nil {
		slog.Debug("Failed to write page", "error", err)
	}
}
