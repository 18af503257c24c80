package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/markdave123-py/parley/internal/models"
)

var (
	// ErrNotFound is returned by stores when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) error
}

type AgentStore interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context, activeOnly bool) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	CountSessionsByUser(ctx context.Context, userID string) (int, error)
	UpdateSessionTitle(ctx context.Context, id, userID, title string) error
	DeleteSession(ctx context.Context, id, userID string) error

	// TransitionSession moves a session from one status to another only if it is
	// still in the from status. It reports whether a row was changed.
	TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, endedAt time.Time) (bool, error)
}

// ArtifactStore persists per-session artifacts. Upserts are keyed on session id.
type ArtifactStore interface {
	UpsertTranscript(ctx context.Context, rec *models.TranscriptRecord) error
	GetTranscript(ctx context.Context, sessionID string) (*models.TranscriptRecord, error)
	UpsertFeedback(ctx context.Context, rec *models.FeedbackRecord) error
	GetFeedback(ctx context.Context, sessionID string) (*models.FeedbackRecord, error)
	UpsertNotes(ctx context.Context, note *models.SessionNote) error
	GetNotes(ctx context.Context, sessionID string) (*models.SessionNote, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	ListSettings(ctx context.Context) ([]models.Setting, error)
	UpsertSetting(ctx context.Context, setting *models.Setting) error
}

// WebhookEventStore is append-only.
type WebhookEventStore interface {
	InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	ListWebhookEvents(ctx context.Context, provider string, limit int) ([]models.WebhookEvent, error)
}

// DbClient defines all persistence operations the services need.
// It abstracts the SQL backend so higher layers never depend on a specific driver.
type DbClient interface {
	UserStore
	AgentStore
	SessionStore
	ArtifactStore
	SettingsStore
	WebhookEventStore

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
