package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhook "github.com/markdave123-py/parley/internal/core/webhook_engine"
	"github.com/markdave123-py/parley/internal/models"
)

func TestWebhookReceiveAndRecent(t *testing.T) {
	store := newDB(t)
	pipeline := webhook.NewPipeline(store, "whsec_svc", webhook.DefaultConfig(), nil)
	svc := NewWebhookService(pipeline, store, webhook.ProviderElevenLabs)
	ctx := context.Background()

	raw := []byte(`{"type":"ping"}`)
	out := svc.Receive(ctx, raw, webhook.Sign(raw, "whsec_svc"))
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, models.WebhookStatusIgnored, out.Status)

	out = svc.Receive(ctx, raw, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, out.HTTPStatus)

	events, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestWebhookRecentClampsLimit(t *testing.T) {
	store := newDB(t)
	svc := NewWebhookService(nil, store, webhook.ProviderElevenLabs)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 25 {
		require.NoError(t, store.InsertWebhookEvent(ctx, &models.WebhookEvent{
			ID:        uuid.NewString(),
			Provider:  webhook.ProviderElevenLabs,
			EventType: fmt.Sprintf("e%d", i),
			Payload:   []byte(`{}`),
			Status:    models.WebhookStatusIgnored,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 20)
	assert.Equal(t, "e24", events[0].EventType)

	events, err = svc.Recent(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, events, 25)
}
