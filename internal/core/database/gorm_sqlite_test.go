package db

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/parley/internal/core"
)

func newSQLiteClient(t *testing.T) core.DbClient {
	t.Helper()
	c, err := NewGormClient("sqlite", filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGormSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteClient)
}

func TestGormLogsThroughSlogWithoutNotFoundNoise(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	c := newSQLiteClient(t)
	_, err := c.GetSetting(context.Background(), "branding")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.NotContains(t, buf.String(), "record not found")

	slogWriter{}.Printf("slow sql %s", "SELECT 1")
	assert.Contains(t, buf.String(), "slow sql SELECT 1")
	assert.Contains(t, buf.String(), "component=gorm")
}

func TestOpenGormRejectsUnknownDriver(t *testing.T) {
	_, err := OpenGorm("mysql", "root@/parley")
	assert.Error(t, err)

	_, err = OpenGorm("postgres", "")
	assert.Error(t, err)
}

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{dsn: ":memory:", ok: false},
		{dsn: "file::memory:?cache=shared", ok: false},
		{dsn: "file:test.db?mode=memory", ok: false},
		{dsn: "data/parley.db?_pragma=busy_timeout(5000)", path: "data/parley.db", ok: true},
		{dsn: "file:/var/lib/parley/parley.db", path: "/var/lib/parley/parley.db", ok: true},
	}
	for _, tc := range cases {
		path, ok := sqliteFilePath(tc.dsn)
		assert.Equal(t, tc.ok, ok, tc.dsn)
		assert.Equal(t, tc.path, path, tc.dsn)
	}
}
