package db

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// runStoreSuite exercises a core.DbClient implementation against a fresh database.
func runStoreSuite(t *testing.T, newClient func(t *testing.T) core.DbClient) {
	t.Run("users", func(t *testing.T) { testUsers(t, newClient(t)) })
	t.Run("agents", func(t *testing.T) { testAgents(t, newClient(t)) })
	t.Run("session transitions", func(t *testing.T) { testSessionTransitions(t, newClient(t)) })
	t.Run("session ownership", func(t *testing.T) { testSessionOwnership(t, newClient(t)) })
	t.Run("artifact upserts", func(t *testing.T) { testArtifactUpserts(t, newClient(t)) })
	t.Run("delete session removes artifacts", func(t *testing.T) { testDeleteSessionCascades(t, newClient(t)) })
	t.Run("settings", func(t *testing.T) { testSettings(t, newClient(t)) })
	t.Run("webhook events", func(t *testing.T) { testWebhookEvents(t, newClient(t)) })
}

func seedUser(t *testing.T, c core.DbClient, email string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Email: email, PasswordHash: "hash", Role: models.RoleUser}
	require.NoError(t, c.CreateUser(context.Background(), u))
	return u
}

func seedAgent(t *testing.T, c core.DbClient, title string, active bool, order int) *models.Agent {
	t.Helper()
	a := &models.Agent{
		ID:            uuid.NewString(),
		Title:         title,
		Tags:          []string{"sales", "b2b"},
		ElevenAgentID: "agent_" + title,
		IsActive:      active,
		DisplayOrder:  order,
	}
	require.NoError(t, c.CreateAgent(context.Background(), a))
	return a
}

func seedSession(t *testing.T, c core.DbClient, userID, agentID string, createdAt time.Time) *models.Session {
	t.Helper()
	s := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agentID,
		Status:    models.SessionStatusPending,
		StartedAt: createdAt,
		CreatedAt: createdAt,
	}
	require.NoError(t, c.CreateSession(context.Background(), s))
	return s
}

func testUsers(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	u := seedUser(t, c, "ada@example.com")

	got, err := c.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.RoleUser, got.Role)

	err = c.CreateUser(ctx, &models.User{ID: uuid.NewString(), Email: "ada@example.com", PasswordHash: "x", Role: models.RoleUser})
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = c.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.UpdateUserRole(ctx, u.ID, models.RoleAdmin))
	got, err = c.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)

	assert.ErrorIs(t, c.UpdateUserRole(ctx, uuid.NewString(), models.RoleAdmin), core.ErrNotFound)

	seedUser(t, c, "grace@example.com")
	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func testAgents(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	second := seedAgent(t, c, "second", true, 2)
	first := seedAgent(t, c, "first", true, 1)
	hidden := seedAgent(t, c, "hidden", false, 0)

	active, err := c.ListAgents(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)
	assert.Equal(t, []string{"sales", "b2b"}, active[0].Tags)

	all, err := c.ListAgents(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	thumb := "agents/first.png"
	first.IsActive = false
	first.ThumbnailPath = &thumb
	first.Tags = nil
	require.NoError(t, c.UpdateAgent(ctx, first))

	got, err := c.GetAgent(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ThumbnailPath)
	assert.Equal(t, thumb, *got.ThumbnailPath)
	assert.Empty(t, got.Tags)

	require.NoError(t, c.DeleteAgent(ctx, hidden.ID))
	_, err = c.GetAgent(ctx, hidden.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, c.DeleteAgent(ctx, hidden.ID), core.ErrNotFound)
}

func testSessionTransitions(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	u := seedUser(t, c, "learner@example.com")
	a := seedAgent(t, c, "coach", true, 0)
	s := seedSession(t, c, u.ID, a.ID, time.Now().UTC())

	ended := time.Now().UTC().Truncate(time.Second)
	changed, err := c.TransitionSession(ctx, s.ID, models.SessionStatusPending, models.SessionStatusCompleted, ended)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.TransitionSession(ctx, s.ID, models.SessionStatusPending, models.SessionStatusCompleted, ended.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = c.TransitionSession(ctx, s.ID, models.SessionStatusPending, models.SessionStatusError, ended)
	require.NoError(t, err)
	assert.False(t, changed, "completed sessions never move back")

	got, err := c.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.WithinDuration(t, ended, *got.EndedAt, time.Second)

	changed, err = c.TransitionSession(ctx, uuid.NewString(), models.SessionStatusPending, models.SessionStatusCompleted, ended)
	require.NoError(t, err)
	assert.False(t, changed)
}

func testSessionOwnership(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	owner := seedUser(t, c, "owner@example.com")
	other := seedUser(t, c, "other@example.com")
	a1 := seedAgent(t, c, "a1", true, 0)
	a2 := seedAgent(t, c, "a2", true, 1)

	base := time.Now().UTC().Add(-time.Hour)
	older := seedSession(t, c, owner.ID, a1.ID, base)
	newer := seedSession(t, c, owner.ID, a2.ID, base.Add(10*time.Minute))
	seedSession(t, c, other.ID, a1.ID, base.Add(20*time.Minute))

	mine, err := c.ListSessions(ctx, models.SessionFilter{UserID: owner.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	byAgent, err := c.ListSessions(ctx, models.SessionFilter{AgentID: a1.ID})
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	pending, err := c.ListSessions(ctx, models.SessionFilter{UserID: owner.ID, Status: models.SessionStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	n, err := c.CountSessionsByUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, c.UpdateSessionTitle(ctx, older.ID, other.ID, "stolen"), core.ErrNotFound)
	require.NoError(t, c.UpdateSessionTitle(ctx, older.ID, owner.ID, "Cold call #1"))
	got, err := c.GetSession(ctx, older.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TitleOverride)
	assert.Equal(t, "Cold call #1", *got.TitleOverride)

	assert.ErrorIs(t, c.DeleteSession(ctx, older.ID, other.ID), core.ErrNotFound)
}

func testArtifactUpserts(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	u := seedUser(t, c, "artifacts@example.com")
	a := seedAgent(t, c, "coach", true, 0)
	s := seedSession(t, c, u.ID, a.ID, time.Now().UTC())

	_, err := c.GetTranscript(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	ts := int64(1500)
	require.NoError(t, c.UpsertTranscript(ctx, &models.TranscriptRecord{
		SessionID: s.ID,
		Turns:     []models.TranscriptTurn{{Role: "agent", Text: "Hello"}},
	}))
	require.NoError(t, c.UpsertTranscript(ctx, &models.TranscriptRecord{
		SessionID: s.ID,
		Turns: []models.TranscriptTurn{
			{Role: "agent", Text: "Hello"},
			{Role: "user", Text: "Hi there", TsMs: &ts},
		},
	}))
	tr, err := c.GetTranscript(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, tr.Turns, 2)
	require.NotNil(t, tr.Turns[1].TsMs)
	assert.Equal(t, ts, *tr.Turns[1].TsMs)

	require.NoError(t, c.UpsertFeedback(ctx, &models.FeedbackRecord{
		SessionID:   s.ID,
		RawFeedback: json.RawMessage(`{"summary":"partial"}`),
	}))
	fb, err := c.GetFeedback(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, fb.ScoreOverall)
	assert.Nil(t, fb.ScoreBreakdown)

	score := 82.5
	require.NoError(t, c.UpsertFeedback(ctx, &models.FeedbackRecord{
		SessionID:      s.ID,
		ScoreOverall:   &score,
		ScoreBreakdown: map[string]float64{"empathy": 90},
		RawFeedback:    json.RawMessage(`{"score_overall":82.5}`),
	}))
	fb, err = c.GetFeedback(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, fb.ScoreOverall)
	assert.InDelta(t, 82.5, *fb.ScoreOverall, 0.0001)
	assert.Equal(t, map[string]float64{"empathy": 90}, fb.ScoreBreakdown)
	assert.JSONEq(t, `{"score_overall":82.5}`, string(fb.RawFeedback))

	require.NoError(t, c.UpsertNotes(ctx, &models.SessionNote{SessionID: s.ID, NotesMD: "draft"}))
	require.NoError(t, c.UpsertNotes(ctx, &models.SessionNote{SessionID: s.ID, NotesMD: "# final"}))
	n, err := c.GetNotes(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "# final", n.NotesMD)
}

func testDeleteSessionCascades(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	u := seedUser(t, c, "cascade@example.com")
	a := seedAgent(t, c, "coach", true, 0)
	s := seedSession(t, c, u.ID, a.ID, time.Now().UTC())

	require.NoError(t, c.UpsertTranscript(ctx, &models.TranscriptRecord{SessionID: s.ID, Turns: []models.TranscriptTurn{{Role: "user", Text: "x"}}}))
	require.NoError(t, c.UpsertFeedback(ctx, &models.FeedbackRecord{SessionID: s.ID, RawFeedback: json.RawMessage(`{}`)}))
	require.NoError(t, c.UpsertNotes(ctx, &models.SessionNote{SessionID: s.ID, NotesMD: "n"}))

	require.NoError(t, c.DeleteSession(ctx, s.ID, u.ID))

	_, err := c.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = c.GetTranscript(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = c.GetFeedback(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = c.GetNotes(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testSettings(t *testing.T, c core.DbClient) {
	ctx := context.Background()

	_, err := c.GetSetting(ctx, models.SettingsKeyBranding)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.UpsertSetting(ctx, &models.Setting{Key: models.SettingsKeyBranding, Value: json.RawMessage(`{"primary_color":"#000000"}`)}))
	require.NoError(t, c.UpsertSetting(ctx, &models.Setting{Key: models.SettingsKeyBranding, Value: json.RawMessage(`{"primary_color":"#ffffff"}`)}))
	require.NoError(t, c.UpsertSetting(ctx, &models.Setting{Key: models.SettingsKeyElevenLabs, Value: json.RawMessage(`{"secret":"s"}`)}))

	got, err := c.GetSetting(ctx, models.SettingsKeyBranding)
	require.NoError(t, err)
	assert.JSONEq(t, `{"primary_color":"#ffffff"}`, string(got.Value))

	all, err := c.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.SettingsKeyBranding, all[0].Key)
	assert.Equal(t, models.SettingsKeyElevenLabs, all[1].Key)
}

func testWebhookEvents(t *testing.T, c core.DbClient) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, status := range []models.WebhookStatus{models.WebhookStatusProcessed, models.WebhookStatusIgnored, models.WebhookStatusFailed} {
		ev := &models.WebhookEvent{
			ID:        uuid.NewString(),
			Provider:  "elevenlabs",
			EventType: "post_call_transcription",
			Payload:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if status == models.WebhookStatusFailed {
			ev.Error = "session not found"
		} else {
			ev.Verified = true
		}
		require.NoError(t, c.InsertWebhookEvent(ctx, ev))
	}
	require.NoError(t, c.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ID: uuid.NewString(), Provider: "other", EventType: "x", Payload: json.RawMessage(`{}`),
		Status: models.WebhookStatusIgnored, CreatedAt: base.Add(time.Hour),
	}))

	events, err := c.ListWebhookEvents(ctx, "elevenlabs", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.WebhookStatusFailed, events[0].Status)
	assert.Equal(t, "session not found", events[0].Error)
	assert.JSONEq(t, `{"n":2}`, string(events[0].Payload))
	assert.False(t, events[0].Verified)
	assert.Equal(t, models.WebhookStatusIgnored, events[1].Status)
	assert.Empty(t, events[1].Error)
	assert.True(t, events[1].Verified)

	all, err := c.ListWebhookEvents(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
