package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/parley/internal/services"
)

type AgentHandler struct {
	agents *services.AgentService
}

func NewAgentHandler(agents *services.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

// ListActive is the user-facing catalog.
func (h *AgentHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *AgentHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.AgentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := h.agents.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in services.AgentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := h.agents.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
