package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// GormClient implements core.DbClient on gorm. It backs local development on
// sqlite and can also point at Postgres.
type GormClient struct {
	db *gorm.DB
}

var _ core.DbClient = (*GormClient)(nil)

func NewGormClient(driver, dsn string) (*GormClient, error) {
	gdb, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	if err := gdb.AutoMigrate(gormRows()...); err != nil {
		return nil, fmt.Errorf("migrate gorm store: %w", err)
	}
	return &GormClient{db: gdb}, nil
}

func (c *GormClient) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

// Users

func (c *GormClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	row := userRowFromModel(user)
	return mapGormError(c.db.WithContext(ctx).Create(&row).Error)
}

func (c *GormClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row userRow
	if err := c.db.WithContext(ctx).Where("email = ?", email).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	u := row.toModel()
	return &u, nil
}

func (c *GormClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	if err := c.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	u := row.toModel()
	return &u, nil
}

func (c *GormClient) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := c.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *GormClient) UpdateUserRole(ctx context.Context, id string, role models.Role) error {
	res := c.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(map[string]any{
		"role":       string(role),
		"updated_at": time.Now().UTC(),
	})
	return gormAffectedOne(res)
}

// Agents

func (c *GormClient) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent == nil {
		return errors.New("nil agent")
	}
	row, err := agentRowFromModel(agent)
	if err != nil {
		return err
	}
	return mapGormError(c.db.WithContext(ctx).Create(&row).Error)
}

func (c *GormClient) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var row agentRow
	if err := c.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	a, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *GormClient) ListAgents(ctx context.Context, activeOnly bool) ([]models.Agent, error) {
	q := c.db.WithContext(ctx).Order("display_order ASC").Order("created_at ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []agentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := make([]models.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *GormClient) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	if agent == nil {
		return errors.New("nil agent")
	}
	row, err := agentRowFromModel(agent)
	if err != nil {
		return err
	}
	// A map keeps false and zero values in the update set.
	res := c.db.WithContext(ctx).Model(&agentRow{}).Where("id = ?", agent.ID).Updates(map[string]any{
		"title":             row.Title,
		"short_description": row.ShortDescription,
		"instructions":      row.Instructions,
		"difficulty":        row.Difficulty,
		"language":          row.Language,
		"tags":              row.Tags,
		"thumbnail_path":    row.ThumbnailPath,
		"eleven_agent_id":   row.ElevenAgentID,
		"is_active":         row.IsActive,
		"display_order":     row.DisplayOrder,
		"updated_at":        time.Now().UTC(),
	})
	return gormAffectedOne(res)
}

func (c *GormClient) DeleteAgent(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&sessionRow{}).Where("agent_id = ?", id).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if err := deleteSessionChildren(tx, ids); err != nil {
			return err
		}
		if err := tx.Where("agent_id = ?", id).Delete(&sessionRow{}).Error; err != nil {
			return err
		}
		return gormAffectedOne(tx.Where("id = ?", id).Delete(&agentRow{}))
	})
}

// Sessions

func (c *GormClient) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	row := sessionRowFromModel(session)
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now().UTC()
	}
	return mapGormError(c.db.WithContext(ctx).Create(&row).Error)
}

func (c *GormClient) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var row sessionRow
	if err := c.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	s := row.toModel()
	return &s, nil
}

func (c *GormClient) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	q := c.db.WithContext(ctx).Order("created_at DESC")
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var rows []sessionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]models.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *GormClient) CountSessionsByUser(ctx context.Context, userID string) (int, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&sessionRow{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

func (c *GormClient) UpdateSessionTitle(ctx context.Context, id, userID, title string) error {
	res := c.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("title_override", title)
	return gormAffectedOne(res)
}

// DeleteSession removes artifacts explicitly; sqlite does not enforce the cascade.
func (c *GormClient) DeleteSession(ctx context.Context, id, userID string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&sessionRow{})
		if err := gormAffectedOne(res); err != nil {
			return err
		}
		return deleteSessionChildren(tx, []string{id})
	})
}

func (c *GormClient) TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, endedAt time.Time) (bool, error) {
	res := c.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":   string(to),
			"ended_at": gorm.Expr("COALESCE(ended_at, ?)", endedAt),
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition session: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func deleteSessionChildren(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, model := range []any{&transcriptRow{}, &feedbackRow{}, &noteRow{}} {
		if err := tx.Where("session_id IN ?", ids).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// Artifacts

func (c *GormClient) UpsertTranscript(ctx context.Context, rec *models.TranscriptRecord) error {
	if rec == nil {
		return errors.New("nil transcript")
	}
	turns := rec.Turns
	if turns == nil {
		turns = []models.TranscriptTurn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	row := transcriptRow{SessionID: rec.SessionID, Transcript: datatypes.JSON(raw)}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"transcript", "updated_at"}),
		}).
		Create(&row).Error
}

func (c *GormClient) GetTranscript(ctx context.Context, sessionID string) (*models.TranscriptRecord, error) {
	var row transcriptRow
	if err := c.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	rec := models.TranscriptRecord{SessionID: row.SessionID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal(row.Transcript, &rec.Turns); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &rec, nil
}

func (c *GormClient) UpsertFeedback(ctx context.Context, rec *models.FeedbackRecord) error {
	if rec == nil {
		return errors.New("nil feedback")
	}
	row := feedbackRow{SessionID: rec.SessionID, ScoreOverall: rec.ScoreOverall}
	if rec.ScoreBreakdown != nil {
		b, err := json.Marshal(rec.ScoreBreakdown)
		if err != nil {
			return fmt.Errorf("marshal score breakdown: %w", err)
		}
		row.ScoreBreakdown = datatypes.JSON(b)
	}
	row.RawFeedback = datatypes.JSON(rec.RawFeedback)
	if len(row.RawFeedback) == 0 {
		row.RawFeedback = datatypes.JSON(`{}`)
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score_overall", "score_breakdown", "raw_feedback", "updated_at"}),
		}).
		Create(&row).Error
}

func (c *GormClient) GetFeedback(ctx context.Context, sessionID string) (*models.FeedbackRecord, error) {
	var row feedbackRow
	if err := c.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	rec := models.FeedbackRecord{
		SessionID:    row.SessionID,
		ScoreOverall: row.ScoreOverall,
		RawFeedback:  json.RawMessage(row.RawFeedback),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.ScoreBreakdown) > 0 && string(row.ScoreBreakdown) != "null" {
		if err := json.Unmarshal(row.ScoreBreakdown, &rec.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("decode score breakdown: %w", err)
		}
	}
	return &rec, nil
}

func (c *GormClient) UpsertNotes(ctx context.Context, note *models.SessionNote) error {
	if note == nil {
		return errors.New("nil note")
	}
	row := noteRow{SessionID: note.SessionID, NotesMD: note.NotesMD}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"notes_md", "updated_at"}),
		}).
		Create(&row).Error
}

func (c *GormClient) GetNotes(ctx context.Context, sessionID string) (*models.SessionNote, error) {
	var row noteRow
	if err := c.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &models.SessionNote{SessionID: row.SessionID, NotesMD: row.NotesMD, UpdatedAt: row.UpdatedAt}, nil
}

// Settings

func (c *GormClient) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var row settingRow
	if err := c.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &models.Setting{Key: row.Key, Value: json.RawMessage(row.Value), UpdatedAt: row.UpdatedAt}, nil
}

func (c *GormClient) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var rows []settingRow
	if err := c.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make([]models.Setting, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Setting{Key: r.Key, Value: json.RawMessage(r.Value), UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

func (c *GormClient) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	if setting == nil {
		return errors.New("nil setting")
	}
	row := settingRow{Key: setting.Key, Value: datatypes.JSON(setting.Value)}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

// Webhook events

func (c *GormClient) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event == nil {
		return errors.New("nil webhook event")
	}
	row := webhookEventRow{
		ID:        event.ID,
		Provider:  event.Provider,
		EventType: event.EventType,
		Payload:   datatypes.JSON(event.Payload),
		Status:    string(event.Status),
		Verified:  event.Verified,
		CreatedAt: event.CreatedAt,
	}
	if event.Error != "" {
		msg := event.Error
		row.Error = &msg
	}
	return mapGormError(c.db.WithContext(ctx).Create(&row).Error)
}

func (c *GormClient) ListWebhookEvents(ctx context.Context, provider string, limit int) ([]models.WebhookEvent, error) {
	q := c.db.WithContext(ctx).Order("created_at DESC")
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []webhookEventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	out := make([]models.WebhookEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func gormAffectedOne(res *gorm.DB) error {
	if res.Error != nil {
		return mapGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func mapGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return core.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	default:
		return err
	}
}
