package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"
)

// Parley's Postgres schema is the single idempotent script scripts/initdb.sql:
//
//	profiles             accounts, bcrypt hashes and the user/admin role
//	agents               admin-managed catalog of ElevenLabs agents
//	sessions             one practice conversation per row, pending until a webhook lands
//	session_transcripts  normalized turns, one row per session
//	session_feedback     scores and criteria, one row per session
//	session_notes        the learner's markdown notes
//	settings             typed JSON sections (branding, webhook secret, ...)
//	webhook_events       append-only audit of every delivery, with its verified flag
//	parley_meta          versions the script has been applied at
//
// Schema changes are appended to the script as guarded statements and
// recorded under a new version, so rerunning it upgrades older databases.
const schemaVersion = 2

// schemaLockID serializes bootstrap across replicas starting together.
const schemaLockID int64 = 0x7061726c6579

//go:embed scripts/initdb.sql
var schemaFS embed.FS

// EnsureBootstrapped applies initdb.sql when the database is empty or
// recorded at an older schemaVersion.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	current, err := currentSchemaVersion(ctxBoot, db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	script, err := schemaFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctxBoot, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctxBoot, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	if _, err := tx.ExecContext(ctxBoot, string(script)); err != nil {
		return fmt.Errorf("apply schema v%d: %w", schemaVersion, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	slog.Info("database schema applied", "from_version", current, "to_version", schemaVersion)
	return nil
}

// currentSchemaVersion returns 0 for a database Parley has never touched.
func currentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var table sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('parley_meta')::text`).Scan(&table); err != nil {
		return 0, fmt.Errorf("look up parley_meta: %w", err)
	}
	if !table.Valid {
		return 0, nil
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT max(version) FROM parley_meta`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}
