package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaScriptRecordsCurrentVersion(t *testing.T) {
	script, err := schemaFS.ReadFile("scripts/initdb.sql")
	require.NoError(t, err)
	sql := string(script)

	for v := 1; v <= schemaVersion; v++ {
		assert.Contains(t, sql, fmt.Sprintf("(%d)", v), "parley_meta insert misses version %d", v)
	}
	for _, table := range []string{"profiles", "agents", "sessions", "session_transcripts", "session_feedback", "session_notes", "settings", "webhook_events", "parley_meta"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, sql, "ADD COLUMN IF NOT EXISTS verified")
}
