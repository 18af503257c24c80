package db

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/markdave123-py/parley/internal/models"
)

// Row types mirror scripts/initdb.sql so both backends can share a database.

type userRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"size:16;not null;default:user"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "profiles" }

func userRowFromModel(u *models.User) userRow {
	return userRow{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRow) toModel() models.User {
	return models.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         models.Role(r.Role),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type agentRow struct {
	ID               string         `gorm:"primaryKey;size:36"`
	Title            string         `gorm:"not null"`
	ShortDescription string         `gorm:"not null;default:''"`
	Instructions     string         `gorm:"not null;default:''"`
	Difficulty       string         `gorm:"size:32;not null;default:''"`
	Language         string         `gorm:"size:16;not null;default:''"`
	Tags             datatypes.JSON `gorm:"not null"`
	ThumbnailPath    *string
	ElevenAgentID    string    `gorm:"column:eleven_agent_id;not null"`
	IsActive         bool      `gorm:"not null"`
	DisplayOrder     int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (agentRow) TableName() string { return "agents" }

func agentRowFromModel(a *models.Agent) (agentRow, error) {
	tags, err := json.Marshal(nonNilTags(a.Tags))
	if err != nil {
		return agentRow{}, fmt.Errorf("marshal tags: %w", err)
	}
	return agentRow{
		ID:               a.ID,
		Title:            a.Title,
		ShortDescription: a.ShortDescription,
		Instructions:     a.Instructions,
		Difficulty:       a.Difficulty,
		Language:         a.Language,
		Tags:             datatypes.JSON(tags),
		ThumbnailPath:    a.ThumbnailPath,
		ElevenAgentID:    a.ElevenAgentID,
		IsActive:         a.IsActive,
		DisplayOrder:     a.DisplayOrder,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}, nil
}

func (r agentRow) toModel() (models.Agent, error) {
	a := models.Agent{
		ID:               r.ID,
		Title:            r.Title,
		ShortDescription: r.ShortDescription,
		Instructions:     r.Instructions,
		Difficulty:       r.Difficulty,
		Language:         r.Language,
		ThumbnailPath:    r.ThumbnailPath,
		ElevenAgentID:    r.ElevenAgentID,
		IsActive:         r.IsActive,
		DisplayOrder:     r.DisplayOrder,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &a.Tags); err != nil {
			return models.Agent{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return a, nil
}

type sessionRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	UserID        string    `gorm:"size:36;not null;index:idx_sessions_user_created,priority:1"`
	AgentID       string    `gorm:"size:36;not null"`
	Status        string    `gorm:"size:16;not null;default:pending"`
	StartedAt     time.Time `gorm:"not null"`
	EndedAt       *time.Time
	TitleOverride *string
	CreatedAt     time.Time `gorm:"not null;index:idx_sessions_user_created,priority:2"`
}

func (sessionRow) TableName() string { return "sessions" }

func sessionRowFromModel(s *models.Session) sessionRow {
	return sessionRow{
		ID:            s.ID,
		UserID:        s.UserID,
		AgentID:       s.AgentID,
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		TitleOverride: s.TitleOverride,
		CreatedAt:     s.CreatedAt,
	}
}

func (r sessionRow) toModel() models.Session {
	return models.Session{
		ID:            r.ID,
		UserID:        r.UserID,
		AgentID:       r.AgentID,
		Status:        models.SessionStatus(r.Status),
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		TitleOverride: r.TitleOverride,
		CreatedAt:     r.CreatedAt,
	}
}

type transcriptRow struct {
	SessionID  string         `gorm:"primaryKey;size:36"`
	Transcript datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (transcriptRow) TableName() string { return "session_transcripts" }

type feedbackRow struct {
	SessionID      string `gorm:"primaryKey;size:36"`
	ScoreOverall   *float64
	ScoreBreakdown datatypes.JSON
	RawFeedback    datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

func (feedbackRow) TableName() string { return "session_feedback" }

type noteRow struct {
	SessionID string    `gorm:"primaryKey;size:36"`
	NotesMD   string    `gorm:"column:notes_md;not null;default:''"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (noteRow) TableName() string { return "session_notes" }

type settingRow struct {
	Key       string         `gorm:"primaryKey;size:64"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (settingRow) TableName() string { return "settings" }

type webhookEventRow struct {
	ID        string         `gorm:"primaryKey;size:36"`
	Provider  string         `gorm:"size:32;not null"`
	EventType string         `gorm:"size:128;not null;default:''"`
	Payload   datatypes.JSON `gorm:"not null"`
	Status    string         `gorm:"size:16;not null"`
	Error     *string
	Verified  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (webhookEventRow) TableName() string { return "webhook_events" }

func (r webhookEventRow) toModel() models.WebhookEvent {
	e := models.WebhookEvent{
		ID:        r.ID,
		Provider:  r.Provider,
		EventType: r.EventType,
		Payload:   json.RawMessage(r.Payload),
		Status:    models.WebhookStatus(r.Status),
		Verified:  r.Verified,
		CreatedAt: r.CreatedAt,
	}
	if r.Error != nil {
		e.Error = *r.Error
	}
	return e
}

func gormRows() []any {
	return []any{
		&userRow{},
		&agentRow{},
		&sessionRow{},
		&transcriptRow{},
		&feedbackRow{},
		&noteRow{},
		&settingRow{},
		&webhookEventRow{},
	}
}
