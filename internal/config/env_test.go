package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/parley")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ELEVENLABS_WEBHOOK_SECRET", "  whsec  ")
	t.Setenv("WEBHOOK_TIMESTAMP_TOLERANCE", "not-a-duration")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("S3_USE_PATH_STYLE", "true")

	cfg := LoadConfig()

	assert.Equal(t, "pgx", cfg.DBBackend)
	assert.Equal(t, "whsec", cfg.WebhookSecret)
	assert.Equal(t, "X-Signature", cfg.WebhookSignatureHeader)
	assert.Equal(t, 30*time.Minute, cfg.WebhookTimestampTolerance)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.S3PathStyle)
	require.NoError(t, cfg.Validate())
}

func TestValidateReportsAllMissingKeys(t *testing.T) {
	cfg := &Config{DBBackend: "mongo"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_BACKEND")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("webhook processed", "session_id", "s1")

	assert.Contains(t, stderr.String(), "session_id=s1")
	assert.True(t, strings.HasPrefix(file.String(), "{"), "file output should be JSON")
	assert.Contains(t, file.String(), `"session_id":"s1"`)
}
