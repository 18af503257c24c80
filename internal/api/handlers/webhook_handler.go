package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webhook "github.com/markdave123-py/parley/internal/core/webhook_engine"
	"github.com/markdave123-py/parley/internal/services"
)

const (
	maxWebhookBody          = 5 << 20
	fallbackSignatureHeader = "ElevenLabs-Signature"
)

type WebhookHandler struct {
	webhooks        *services.WebhookService
	signatureHeader string
}

func NewWebhookHandler(webhooks *services.WebhookService, signatureHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}
	return &WebhookHandler{webhooks: webhooks, signatureHeader: signatureHeader}
}

// Receive hands the exact request bytes to the webhook pipeline.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		slog.WarnContext(r.Context(), "read webhook body", "error", err, "bytes_read", len(raw))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respond(w, h.webhooks.Reject(r.Context(), raw, http.StatusRequestEntityTooLarge, webhook.ErrBodyTooLarge))
			return
		}
		h.respond(w, h.webhooks.Reject(r.Context(), raw, http.StatusBadRequest, fmt.Errorf("could not read body: %w", err)))
		return
	}

	signature := r.Header.Get(h.signatureHeader)
	if signature == "" {
		signature = r.Header.Get(fallbackSignatureHeader)
	}

	h.respond(w, h.webhooks.Receive(r.Context(), raw, signature))
}

func (h *WebhookHandler) respond(w http.ResponseWriter, out webhook.Outcome) {
	if out.HTTPStatus >= http.StatusBadRequest {
		writeError(w, out.HTTPStatus, out.Message)
		return
	}
	writeJSON(w, out.HTTPStatus, map[string]any{
		"success":    true,
		"status":     out.Status,
		"message":    out.Message,
		"session_id": out.SessionID,
	})
}
