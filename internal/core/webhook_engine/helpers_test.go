package webhook_engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	db "github.com/markdave123-py/parley/internal/core/database"
	"github.com/markdave123-py/parley/internal/models"
)

const testSecret = "whsec_test"

func newStore(t *testing.T) *db.GormClient {
	t.Helper()
	c, err := db.NewGormClient("sqlite", filepath.Join(t.TempDir(), "webhooks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// seedPendingSession creates a user, an agent and a pending session.
func seedPendingSession(t *testing.T, store *db.GormClient) *models.Session {
	t.Helper()
	ctx := context.Background()
	u := &models.User{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: models.RoleUser}
	require.NoError(t, store.CreateUser(ctx, u))
	a := &models.Agent{ID: uuid.NewString(), Title: "Negotiation coach", ElevenAgentID: "agent_123", IsActive: true}
	require.NoError(t, store.CreateAgent(ctx, a))
	s := &models.Session{ID: uuid.NewString(), UserID: u.ID, AgentID: a.ID, Status: models.SessionStatusPending, StartedAt: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, s))
	return s
}

// flatPayload builds a body in the flat layout.
func flatPayload(t *testing.T, sessionID string, transcript []map[string]any, analysis map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"event": "post_call",
		"conversation_initiation_client_data": map[string]any{
			"dynamic_variables": map[string]any{"session_id": sessionID, "user_id": "u1", "agent_db_id": "a1"},
		},
	}
	if transcript != nil {
		body["transcript"] = transcript
	}
	if analysis != nil {
		body["analysis"] = analysis
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func mustSign(raw []byte) string { return Sign(raw, testSecret) }

// failingEvents wraps a store and rejects audit inserts.
type failingEvents struct {
	*db.GormClient
}

func (failingEvents) InsertWebhookEvent(context.Context, *models.WebhookEvent) error {
	return errors.New("disk full")
}
