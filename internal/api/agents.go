package api

import (
	"net/http"

	"github.com/dietnavigator/nutrition-chat/internal/agentdef"
	"github.com/go-chi/chi/v5"
)

// AgentsHandler lists the deployed agent definitions.
type AgentsHandler struct {
	defs []agentdef.Definition
}

// NewAgentsHandler creates a handler listing defs.
func NewAgentsHandler(defs []agentdef.Definition) *AgentsHandler {
	return &AgentsHandler{defs: defs}
}

// RegisterRoutes registers the catalog routes.
func (h *AgentsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agents", h.List)
	r.Get("/api/agents/{name}", h.Get)
}

// List returns every definition.
func (h *AgentsHandler) List(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"agents": h.defs})
}

// Get returns one definition by name.
func (h *AgentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	def, err := agentdef.Lookup(h.defs, chi.URLParam(r, "name"))
	if err != nil {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}
	JSON(w, http.StatusOK, def)
}
