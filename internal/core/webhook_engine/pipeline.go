package webhook_engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// Outcome is what the HTTP layer reports back to the provider.
type Outcome struct {
	Status     models.WebhookStatus
	HTTPStatus int
	EventType  string
	SessionID  string
	Message    string
	Result     *ReconciliationResult
	// Verified is set once the signature check passed.
	Verified bool
	// AuditErr is set when the audit row could not be written.
	AuditErr error
}

// Pipeline gates, normalizes and reconciles one webhook delivery.
//
// secrets:    per-request secret lookup (settings first, then env).
// verifier:   HMAC check over the raw body.
// reconciler: applies the canonical event to session state.
// audit:      always called last, whatever happened before.
type Pipeline struct {
	secrets    *SecretResolver
	verifier   *Verifier
	reconciler *Reconciler
	audit      *AuditRecorder
	logger     *slog.Logger
}

// Store is everything the pipeline persists through.
type Store interface {
	ReconcileStore
	core.SettingsStore
	core.WebhookEventStore
}

func NewPipeline(store Store, staticSecret string, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	logger = logger.With("provider", cfg.Provider)
	return &Pipeline{
		secrets:    NewSecretResolver(store, staticSecret, logger),
		verifier:   NewVerifier(cfg.SignatureTolerance),
		reconciler: NewReconciler(store),
		audit:      NewAuditRecorder(store, cfg.Provider, cfg.AuditTimeout, logger),
		logger:     logger,
	}
}

// Handle processes one delivery. The body must be the exact bytes received.
func (p *Pipeline) Handle(ctx context.Context, raw []byte, signature string) Outcome {
	return p.finish(ctx, raw, p.process(ctx, raw, signature))
}

// Reject audits a delivery the transport refused before it reached the
// pipeline, such as an oversized or unreadable body. raw may be partial and
// is never recovered from.
func (p *Pipeline) Reject(ctx context.Context, raw []byte, httpStatus int, reason error) Outcome {
	return p.finish(ctx, raw, failed(httpStatus, PeekEventType(raw), "", reason.Error()))
}

func (p *Pipeline) finish(ctx context.Context, raw []byte, out Outcome) Outcome {
	entry := AuditEntry{EventType: out.EventType, Payload: raw, Status: out.Status, Verified: out.Verified}
	if out.Status != models.WebhookStatusProcessed {
		entry.Error = out.Message
	}
	out.AuditErr = p.audit.Record(ctx, entry)

	level := slog.LevelInfo
	if out.Status == models.WebhookStatusFailed {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "webhook handled",
		"event_type", out.EventType,
		"session_id", out.SessionID,
		"outcome", out.Status,
		"http_status", out.HTTPStatus,
		"message", out.Message,
		"verified", out.Verified,
	)
	return out
}

func (p *Pipeline) process(ctx context.Context, raw []byte, signature string) Outcome {
	secret, err := p.secrets.Resolve(ctx)
	if err != nil {
		return failed(http.StatusInternalServerError, PeekEventType(raw), "", err.Error())
	}

	if signature == "" {
		return failed(http.StatusUnauthorized, PeekEventType(raw), "", "missing signature")
	}
	if !p.verifier.Verify(raw, signature, secret) {
		return failed(http.StatusUnauthorized, PeekEventType(raw), "", ErrInvalidSignature.Error())
	}

	out := p.reconcile(ctx, raw)
	out.Verified = true
	return out
}

func (p *Pipeline) reconcile(ctx context.Context, raw []byte) Outcome {
	ev, err := Normalize(raw)
	if err != nil {
		return failed(http.StatusInternalServerError, "", "", err.Error())
	}

	res, err := p.reconciler.Reconcile(ctx, ev)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return failed(http.StatusNotFound, ev.EventType, ev.Correlation.SessionID, err.Error())
	case err != nil:
		return failed(http.StatusInternalServerError, ev.EventType, ev.Correlation.SessionID, err.Error())
	}

	out := Outcome{
		Status:     models.WebhookStatusProcessed,
		HTTPStatus: http.StatusOK,
		EventType:  ev.EventType,
		SessionID:  res.SessionID,
		Message:    "webhook processed successfully",
		Result:     &res,
	}
	if res.Ignored {
		out.Status = models.WebhookStatusIgnored
		out.Message = res.Reason
	}
	return out
}

func failed(code int, eventType, sessionID, msg string) Outcome {
	return Outcome{
		Status:     models.WebhookStatusFailed,
		HTTPStatus: code,
		EventType:  eventType,
		SessionID:  sessionID,
		Message:    msg,
	}
}
