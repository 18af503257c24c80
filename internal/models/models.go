package models

import (
	"encoding/json"
	"time"
)

// Role is the authorization level of a profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Agent is a conversation partner from the catalog, backed by a provider-side agent.
type Agent struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	ShortDescription string    `db:"short_description" json:"short_description"`
	Instructions     string    `db:"instructions" json:"instructions,omitempty"`
	Difficulty       string    `db:"difficulty" json:"difficulty"`
	Language         string    `db:"language" json:"language"`
	Tags             []string  `db:"tags" json:"tags"`
	ThumbnailPath    *string   `db:"thumbnail_path" json:"thumbnail_path"`
	ElevenAgentID    string    `db:"eleven_agent_id" json:"eleven_agent_id"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	DisplayOrder     int       `db:"display_order" json:"display_order"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// Terminal reports whether no further status transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// Session is one attempted or completed conversation. Its ID doubles as the
// correlation token echoed back by the voice provider.
type Session struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	AgentID       string        `db:"agent_id" json:"agent_id"`
	Status        SessionStatus `db:"status" json:"status"`
	StartedAt     time.Time     `db:"started_at" json:"started_at"`
	EndedAt       *time.Time    `db:"ended_at" json:"ended_at"`
	TitleOverride *string       `db:"title_override" json:"title_override"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// TranscriptTurn is one utterance in a conversation.
type TranscriptTurn struct {
	Role string `json:"role"` // "user" or "agent"
	Text string `json:"text"`
	TsMs *int64 `json:"ts_ms,omitempty"`
}

// TranscriptRecord holds the whole transcript of a session; at most one per session.
type TranscriptRecord struct {
	SessionID string           `db:"session_id" json:"session_id"`
	Turns     []TranscriptTurn `db:"transcript" json:"transcript"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// FeedbackRecord holds the provider's scored analysis; at most one per session.
type FeedbackRecord struct {
	SessionID      string             `db:"session_id" json:"session_id"`
	ScoreOverall   *float64           `db:"score_overall" json:"score_overall"`
	ScoreBreakdown map[string]float64 `db:"score_breakdown" json:"score_breakdown"`
	RawFeedback    json.RawMessage    `db:"raw_feedback" json:"raw_feedback"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// SessionNote is the user's markdown notes for a session.
type SessionNote struct {
	SessionID string    `db:"session_id" json:"session_id"`
	NotesMD   string    `db:"notes_md" json:"notes_md"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Setting is one raw key/value row. Callers go through the typed Settings aggregate.
type Setting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type WebhookStatus string

const (
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusIgnored   WebhookStatus = "ignored"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookEvent is an append-only audit row, one per inbound delivery attempt.
// Verified is true only when the body's signature checked out.
type WebhookEvent struct {
	ID        string          `db:"id" json:"id"`
	Provider  string          `db:"provider" json:"provider"`
	EventType string          `db:"event_type" json:"event_type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Status    WebhookStatus   `db:"status" json:"status"`
	Error     string          `db:"error" json:"error,omitempty"`
	Verified  bool            `db:"verified" json:"verified"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SessionFilter narrows session listings. Empty fields match everything.
type SessionFilter struct {
	UserID  string
	AgentID string
	Status  SessionStatus
}
