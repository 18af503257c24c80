package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/parley/internal/api/middlewares"
	"github.com/markdave123-py/parley/internal/models"
	"github.com/markdave123-py/parley/internal/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type startSessionRequest struct {
	AgentID string `json:"agentId"`
}

// Start issues the correlation token for a new conversation.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.sessions.StartSession(r.Context(), userID, req.AgentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.sessions.ListMine(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items, "total": len(items)})
}

func (h *SessionHandler) Detail(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())
	d, err := h.sessions.Detail(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type renameRequest struct {
	Title string `json:"title"`
}

func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.sessions.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Title); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())
	if err := h.sessions.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *SessionHandler) SaveNotes(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFrom(r.Context())
	var req notesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.sessions.SaveNotes(r.Context(), userID, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// AdminList filters across all users by userId, agentId and status.
func (h *SessionHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.sessions.List(r.Context(), models.SessionFilter{
		UserID:  q.Get("userId"),
		AgentID: q.Get("agentId"),
		Status:  models.SessionStatus(q.Get("status")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items, "total": len(items)})
}
