package webhook_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// AuditEntry is one webhook delivery attempt.
type AuditEntry struct {
	EventType string
	Payload   []byte
	Status    models.WebhookStatus
	Error     string
	// Verified marks bodies whose signature checked out.
	Verified bool
}

// AuditRecorder appends delivery attempts to the webhook event log.
type AuditRecorder struct {
	store    core.WebhookEventStore
	provider string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuditRecorder(store core.WebhookEventStore, provider string, timeout time.Duration, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{
		store:    store,
		provider: provider,
		timeout:  timeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record writes entry. It runs on a context detached from ctx's cancellation so
// a disconnected client does not lose the row. A failed insert is logged here and
// also returned; callers must not let it change the response.
func (a *AuditRecorder) Record(ctx context.Context, entry AuditEntry) error {
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	eventType := entry.EventType
	if eventType == "" {
		eventType = "unknown"
	}

	ev := &models.WebhookEvent{
		ID:        uuid.NewString(),
		Provider:  a.provider,
		EventType: eventType,
		Payload:   auditPayload(entry.Payload),
		Status:    entry.Status,
		Error:     entry.Error,
		Verified:  entry.Verified,
		CreatedAt: a.now(),
	}
	if err := a.store.InsertWebhookEvent(recCtx, ev); err != nil {
		a.logger.Error("webhook audit write failed",
			"provider", a.provider,
			"event_type", eventType,
			"outcome", entry.Status,
			"outcome_error", entry.Error,
			"error", err,
		)
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// auditPayload keeps JSON bodies verbatim and wraps anything else.
func auditPayload(body []byte) json.RawMessage {
	if len(body) > 0 && json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw_body": string(body)})
	return wrapped
}
