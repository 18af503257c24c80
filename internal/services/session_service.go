package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/parley/internal/core"
	webhook "github.com/markdave123-py/parley/internal/core/webhook_engine"
	"github.com/markdave123-py/parley/internal/models"
)

const maxTitleLen = 200

type SessionService struct {
	db                core.DbClient
	provider          string
	fallbackScanLimit int
}

func NewSessionService(db core.DbClient, provider string, fallbackScanLimit int) *SessionService {
	if fallbackScanLimit <= 0 {
		fallbackScanLimit = 50
	}
	return &SessionService{db: db, provider: provider, fallbackScanLimit: fallbackScanLimit}
}

// CorrelationBundle is passed verbatim to the provider as dynamic variables
// and echoed back in its webhooks.
type CorrelationBundle struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	AgentDBID string `json:"agent_db_id"`
}

type StartSessionResult struct {
	SessionID         string            `json:"sessionId"`
	ProviderAgentID   string            `json:"providerAgentId"`
	CorrelationBundle CorrelationBundle `json:"correlationBundle"`
}

// StartSession mints a pending session for an active agent. Nothing is
// written unless the agent check passes.
func (s *SessionService) StartSession(ctx context.Context, userID, agentID string) (*StartSessionResult, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentId is required", ErrInvalidInput)
	}

	agent, err := s.db.GetAgent(ctx, agentID)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !agent.IsActive) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agent.ID,
		Status:    models.SessionStatusPending,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &StartSessionResult{
		SessionID:       session.ID,
		ProviderAgentID: agent.ElevenAgentID,
		CorrelationBundle: CorrelationBundle{
			UserID:    userID,
			SessionID: session.ID,
			AgentDBID: agent.ID,
		},
	}, nil
}

type SessionListItem struct {
	models.Session
	Title      string `json:"title"`
	AgentTitle string `json:"agent_title"`
}

// List returns sessions matching filter, newest first, labelled with agent titles.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]SessionListItem, error) {
	if filter.Status != "" && filter.Status != models.SessionStatusPending && !filter.Status.Terminal() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}

	var (
		sessions []models.Session
		agents   []models.Agent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sessions, err = s.db.ListSessions(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		agents, err = s.db.ListAgents(gctx, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	titles := make(map[string]string, len(agents))
	for _, a := range agents {
		titles[a.ID] = a.Title
	}

	out := make([]SessionListItem, 0, len(sessions))
	for _, sess := range sessions {
		item := SessionListItem{Session: sess, AgentTitle: titles[sess.AgentID]}
		item.Title = item.AgentTitle
		if sess.TitleOverride != nil && *sess.TitleOverride != "" {
			item.Title = *sess.TitleOverride
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *SessionService) ListMine(ctx context.Context, userID string) ([]SessionListItem, error) {
	return s.List(ctx, models.SessionFilter{UserID: userID})
}

type SessionDetail struct {
	Session    models.Session           `json:"session"`
	Agent      *models.Agent            `json:"agent,omitempty"`
	Transcript *models.TranscriptRecord `json:"transcript,omitempty"`
	Feedback   *models.FeedbackRecord   `json:"feedback,omitempty"`
	Notes      *models.SessionNote      `json:"notes,omitempty"`
	// Degraded marks artifacts rebuilt from the webhook audit log.
	Degraded        bool   `json:"degraded"`
	RecoveredFromID string `json:"recovered_from,omitempty"`
}

// Detail loads a session the user owns together with its artifacts. Missing
// artifacts are recovered from recent webhook payloads when possible.
func (s *SessionService) Detail(ctx context.Context, userID, sessionID string) (*SessionDetail, error) {
	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	d := &SessionDetail{Session: *session}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Agent, err = optional(s.db.GetAgent(gctx, session.AgentID))
		return err
	})
	g.Go(func() (err error) {
		d.Transcript, err = optional(s.db.GetTranscript(gctx, session.ID))
		return err
	})
	g.Go(func() (err error) {
		d.Feedback, err = optional(s.db.GetFeedback(gctx, session.ID))
		return err
	})
	g.Go(func() (err error) {
		d.Notes, err = optional(s.db.GetNotes(gctx, session.ID))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load session detail: %w", err)
	}

	if d.Transcript == nil || d.Feedback == nil {
		if err := s.recoverArtifacts(ctx, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *SessionService) recoverArtifacts(ctx context.Context, d *SessionDetail) error {
	events, err := s.db.ListWebhookEvents(ctx, s.provider, s.fallbackScanLimit)
	if err != nil {
		return fmt.Errorf("scan webhook events: %w", err)
	}
	rec := webhook.RecoverArtifacts(events, d.Session.ID)
	if rec == nil {
		return nil
	}
	if d.Transcript == nil && rec.Transcript != nil {
		d.Transcript = &models.TranscriptRecord{SessionID: d.Session.ID, Turns: rec.Transcript}
		d.Degraded = true
	}
	if d.Feedback == nil && rec.Feedback != nil {
		d.Feedback = rec.Feedback
		d.Degraded = true
	}
	if d.Degraded {
		d.RecoveredFromID = rec.SourceEventID
	}
	return nil
}

func (s *SessionService) Rename(ctx context.Context, userID, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidInput, maxTitleLen)
	}
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.db.UpdateSessionTitle(ctx, sessionID, userID, title)
}

func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.db.DeleteSession(ctx, sessionID, userID)
}

func (s *SessionService) SaveNotes(ctx context.Context, userID, sessionID, notes string) (*models.SessionNote, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	note := &models.SessionNote{SessionID: sessionID, NotesMD: notes}
	if err := s.db.UpsertNotes(ctx, note); err != nil {
		return nil, fmt.Errorf("save notes: %w", err)
	}
	return s.db.GetNotes(ctx, sessionID)
}

// owned returns core.ErrNotFound for a missing session and ErrForbidden for someone else's.
func (s *SessionService) owned(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	session, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrForbidden
	}
	return session, nil
}

// optional turns a not-found lookup into a nil result.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
