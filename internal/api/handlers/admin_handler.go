package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	middleware "github.com/markdave123-py/parley/internal/api/middlewares"
	"github.com/markdave123-py/parley/internal/models"
	"github.com/markdave123-py/parley/internal/services"
)

// AdminHandler serves users, settings and the webhook audit log to admins.
type AdminHandler struct {
	users    *services.UserService
	settings *services.SettingsService
	webhooks *services.WebhookService
}

func NewAdminHandler(users *services.UserService, settings *services.SettingsService, webhooks *services.WebhookService) *AdminHandler {
	return &AdminHandler{users: users, settings: settings, webhooks: webhooks}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListWithCounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type setRoleRequest struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFrom(r.Context())
	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.users.SetRole(r.Context(), actorID, req.UserID, req.Role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Masked())
}

type updateSettingRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.settings.Update(r.Context(), req.Key, req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Masked())
}

// PublicSettings needs no auth and never includes the webhook secret.
func (h *AdminHandler) PublicSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Public())
}

func (h *AdminHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	events, err := h.webhooks.Recent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
