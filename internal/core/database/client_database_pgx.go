package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

// NewDatabaseClient opens a pgx-backed pool, pings it and runs the bootstrap once.
func NewDatabaseClient(ctx context.Context, databaseURL, sslCertPath string) (*DatabaseClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := databaseURL
	if sslCertPath != "" {
		if _, err := os.Stat(sslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
		}
		u, err := url.Parse(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", sslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO profiles (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	now := time.Now().UTC()
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Email, user.PasswordHash, string(user.Role), orNow(user.CreatedAt, now), orNow(user.UpdatedAt, now))
	return mapPgError(err)
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM profiles WHERE email = $1
	`
	return scanUser(c.db.QueryRowContext(ctx, q, email))
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM profiles WHERE id = $1
	`
	return scanUser(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) ListUsers(ctx context.Context) ([]models.User, error) {
	const q = `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM profiles ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateUserRole(ctx context.Context, id string, role models.Role) error {
	const q = `UPDATE profiles SET role = $2, updated_at = now() WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id, string(role))
	return affectedOne(res, err)
}

// Agents

const agentColumns = `id, title, short_description, instructions, difficulty, language, tags,
	thumbnail_path, eleven_agent_id, is_active, display_order, created_at, updated_at`

func (c *DatabaseClient) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent == nil {
		return errors.New("nil agent")
	}
	tags, err := json.Marshal(nonNilTags(agent.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	const q = `
		INSERT INTO agents (` + agentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13)
	`
	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx, q,
		agent.ID, agent.Title, agent.ShortDescription, agent.Instructions, agent.Difficulty, agent.Language,
		string(tags), agent.ThumbnailPath, agent.ElevenAgentID, agent.IsActive, agent.DisplayOrder,
		orNow(agent.CreatedAt, now), orNow(agent.UpdatedAt, now))
	return mapPgError(err)
}

func (c *DatabaseClient) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return scanAgent(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) ListAgents(ctx context.Context, activeOnly bool) ([]models.Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents`
	if activeOnly {
		q += ` WHERE is_active = true`
	}
	q += ` ORDER BY display_order ASC, created_at ASC`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	if agent == nil {
		return errors.New("nil agent")
	}
	tags, err := json.Marshal(nonNilTags(agent.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	const q = `
		UPDATE agents SET
			title = $2, short_description = $3, instructions = $4, difficulty = $5, language = $6,
			tags = $7::jsonb, thumbnail_path = $8, eleven_agent_id = $9, is_active = $10,
			display_order = $11, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q,
		agent.ID, agent.Title, agent.ShortDescription, agent.Instructions, agent.Difficulty, agent.Language,
		string(tags), agent.ThumbnailPath, agent.ElevenAgentID, agent.IsActive, agent.DisplayOrder)
	return affectedOne(res, err)
}

func (c *DatabaseClient) DeleteAgent(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return affectedOne(res, err)
}

// Sessions

const sessionColumns = `id, user_id, agent_id, status, started_at, ended_at, title_override, created_at`

func (c *DatabaseClient) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	const q = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	_, err := c.db.ExecContext(ctx, q,
		session.ID, session.UserID, session.AgentID, string(session.Status),
		orNow(session.StartedAt, now), session.EndedAt, session.TitleOverride, orNow(session.CreatedAt, now))
	return mapPgError(err)
}

func (c *DatabaseClient) GetSession(ctx context.Context, id string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.UserID != "" {
		add("user_id", filter.UserID)
	}
	if filter.AgentID != "" {
		add("agent_id", filter.AgentID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}

	q := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountSessionsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) UpdateSessionTitle(ctx context.Context, id, userID, title string) error {
	const q = `UPDATE sessions SET title_override = $3 WHERE id = $1 AND user_id = $2`
	res, err := c.db.ExecContext(ctx, q, id, userID, title)
	return affectedOne(res, err)
}

// DeleteSession relies on ON DELETE CASCADE for transcripts, feedback and notes.
func (c *DatabaseClient) DeleteSession(ctx context.Context, id, userID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)
	return affectedOne(res, err)
}

func (c *DatabaseClient) TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, endedAt time.Time) (bool, error) {
	const q = `
		UPDATE sessions
		SET status = $3, ended_at = COALESCE(ended_at, $4)
		WHERE id = $1 AND status = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, string(from), string(to), endedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Artifacts

func (c *DatabaseClient) UpsertTranscript(ctx context.Context, rec *models.TranscriptRecord) error {
	if rec == nil {
		return errors.New("nil transcript")
	}
	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	const q = `
		INSERT INTO session_transcripts (session_id, transcript, created_at, updated_at)
		VALUES ($1, $2::jsonb, now(), now())
		ON CONFLICT (session_id) DO UPDATE
		SET transcript = EXCLUDED.transcript, updated_at = now()
	`
	_, err = c.db.ExecContext(ctx, q, rec.SessionID, string(turns))
	return mapPgError(err)
}

func (c *DatabaseClient) GetTranscript(ctx context.Context, sessionID string) (*models.TranscriptRecord, error) {
	const q = `
		SELECT session_id, transcript, created_at, updated_at
		FROM session_transcripts WHERE session_id = $1
	`
	var (
		rec models.TranscriptRecord
		raw []byte
	)
	err := c.db.QueryRowContext(ctx, q, sessionID).Scan(&rec.SessionID, &raw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Turns); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &rec, nil
}

func (c *DatabaseClient) UpsertFeedback(ctx context.Context, rec *models.FeedbackRecord) error {
	if rec == nil {
		return errors.New("nil feedback")
	}
	var breakdown any
	if rec.ScoreBreakdown != nil {
		b, err := json.Marshal(rec.ScoreBreakdown)
		if err != nil {
			return fmt.Errorf("marshal score breakdown: %w", err)
		}
		breakdown = string(b)
	}
	raw := rec.RawFeedback
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	const q = `
		INSERT INTO session_feedback (session_id, score_overall, score_breakdown, raw_feedback, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, now(), now())
		ON CONFLICT (session_id) DO UPDATE
		SET score_overall = EXCLUDED.score_overall,
			score_breakdown = EXCLUDED.score_breakdown,
			raw_feedback = EXCLUDED.raw_feedback,
			updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q, rec.SessionID, rec.ScoreOverall, breakdown, string(raw))
	return mapPgError(err)
}

func (c *DatabaseClient) GetFeedback(ctx context.Context, sessionID string) (*models.FeedbackRecord, error) {
	const q = `
		SELECT session_id, score_overall, score_breakdown, raw_feedback, created_at, updated_at
		FROM session_feedback WHERE session_id = $1
	`
	var (
		rec       models.FeedbackRecord
		score     sql.NullFloat64
		breakdown []byte
		raw       []byte
	)
	err := c.db.QueryRowContext(ctx, q, sessionID).Scan(&rec.SessionID, &score, &breakdown, &raw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if score.Valid {
		rec.ScoreOverall = &score.Float64
	}
	if len(breakdown) > 0 && string(breakdown) != "null" {
		if err := json.Unmarshal(breakdown, &rec.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("decode score breakdown: %w", err)
		}
	}
	rec.RawFeedback = json.RawMessage(raw)
	return &rec, nil
}

func (c *DatabaseClient) UpsertNotes(ctx context.Context, note *models.SessionNote) error {
	if note == nil {
		return errors.New("nil note")
	}
	const q = `
		INSERT INTO session_notes (session_id, notes_md, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE
		SET notes_md = EXCLUDED.notes_md, updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q, note.SessionID, note.NotesMD)
	return mapPgError(err)
}

func (c *DatabaseClient) GetNotes(ctx context.Context, sessionID string) (*models.SessionNote, error) {
	const q = `SELECT session_id, notes_md, updated_at FROM session_notes WHERE session_id = $1`
	var n models.SessionNote
	err := c.db.QueryRowContext(ctx, q, sessionID).Scan(&n.SessionID, &n.NotesMD, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Settings

func (c *DatabaseClient) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	const q = `SELECT key, value, updated_at FROM settings WHERE key = $1`
	return scanSetting(c.db.QueryRowContext(ctx, q, key))
}

func (c *DatabaseClient) ListSettings(ctx context.Context) ([]models.Setting, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	if setting == nil {
		return errors.New("nil setting")
	}
	const q = `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q, setting.Key, string(setting.Value))
	return mapPgError(err)
}

// Webhook events

func (c *DatabaseClient) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event == nil {
		return errors.New("nil webhook event")
	}
	const q = `
		INSERT INTO webhook_events (id, provider, event_type, payload, status, error, verified, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
	`
	var errText *string
	if event.Error != "" {
		errText = &event.Error
	}
	_, err := c.db.ExecContext(ctx, q,
		event.ID, event.Provider, event.EventType, string(event.Payload), string(event.Status), errText, event.Verified,
		orNow(event.CreatedAt, time.Now().UTC()))
	return mapPgError(err)
}

func (c *DatabaseClient) ListWebhookEvents(ctx context.Context, provider string, limit int) ([]models.WebhookEvent, error) {
	q := `SELECT id, provider, event_type, payload, status, error, verified, created_at FROM webhook_events`
	var args []any
	if provider != "" {
		args = append(args, provider)
		q += ` WHERE provider = $1`
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WebhookEvent
	for rows.Next() {
		var (
			e       models.WebhookEvent
			payload []byte
			status  string
			errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Provider, &e.EventType, &payload, &status, &errText, &e.Verified, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		e.Status = models.WebhookStatus(status)
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var (
		a         models.Agent
		tags      []byte
		thumbnail sql.NullString
	)
	err := row.Scan(&a.ID, &a.Title, &a.ShortDescription, &a.Instructions, &a.Difficulty, &a.Language, &tags,
		&thumbnail, &a.ElevenAgentID, &a.IsActive, &a.DisplayOrder, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &a.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if thumbnail.Valid {
		a.ThumbnailPath = &thumbnail.String
	}
	return &a, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s       models.Session
		status  string
		endedAt sql.NullTime
		title   sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AgentID, &status, &s.StartedAt, &endedAt, &title, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	if title.Valid {
		s.TitleOverride = &title.String
	}
	return &s, nil
}

func scanSetting(row rowScanner) (*models.Setting, error) {
	var (
		s     models.Setting
		value []byte
	)
	err := row.Scan(&s.Key, &value, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Value = json.RawMessage(value)
	return &s, nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
