package services

import (
	"context"

	"github.com/markdave123-py/parley/internal/core"
	webhook "github.com/markdave123-py/parley/internal/core/webhook_engine"
	"github.com/markdave123-py/parley/internal/models"
)

const (
	defaultWebhookListLimit = 20
	maxWebhookListLimit     = 200
)

type WebhookService struct {
	pipeline *webhook.Pipeline
	events   core.WebhookEventStore
	provider string
}

func NewWebhookService(pipeline *webhook.Pipeline, events core.WebhookEventStore, provider string) *WebhookService {
	return &WebhookService{pipeline: pipeline, events: events, provider: provider}
}

// Receive runs one raw delivery through the webhook pipeline.
func (s *WebhookService) Receive(ctx context.Context, raw []byte, signature string) webhook.Outcome {
	return s.pipeline.Handle(ctx, raw, signature)
}

// Reject audits a delivery refused before its body could be read in full.
func (s *WebhookService) Reject(ctx context.Context, raw []byte, httpStatus int, reason error) webhook.Outcome {
	return s.pipeline.Reject(ctx, raw, httpStatus, reason)
}

// Recent lists the newest audit rows. Out-of-range limits are clamped.
func (s *WebhookService) Recent(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	switch {
	case limit <= 0:
		limit = defaultWebhookListLimit
	case limit > maxWebhookListLimit:
		limit = maxWebhookListLimit
	}
	return s.events.ListWebhookEvents(ctx, s.provider, limit)
}
