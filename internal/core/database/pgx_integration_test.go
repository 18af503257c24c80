//go:build integration

package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/markdave123-py/parley/internal/core"
)

// startPostgres runs a throwaway Postgres and returns its connection URL.
func startPostgres(t *testing.T) string {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "parley",
				"POSTGRES_PASSWORD": "parley",
				"POSTGRES_DB":       "parley",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://parley:parley@%s:%s/parley?sslmode=disable", host, port.Port())
}

// resetSchema drops every table so each subtest bootstraps from scratch.
func resetSchema(t *testing.T, url string) {
	t.Helper()
	c, err := NewDatabaseClient(context.Background(), url, "")
	require.NoError(t, err)
	_, err = c.db.ExecContext(context.Background(), `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestPgxStore(t *testing.T) {
	url := startPostgres(t)

	runStoreSuite(t, func(t *testing.T) core.DbClient {
		resetSchema(t, url)
		c, err := NewDatabaseClient(context.Background(), url, "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestGormPostgresStore(t *testing.T) {
	url := startPostgres(t)

	runStoreSuite(t, func(t *testing.T) core.DbClient {
		resetSchema(t, url)
		c, err := NewGormClient("postgres", url)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestBootstrapUpgradesVersionOneSchema(t *testing.T) {
	url := startPostgres(t)
	resetSchema(t, url)
	ctx := context.Background()

	c, err := NewDatabaseClient(ctx, url, "")
	require.NoError(t, err)
	defer c.Close()

	// roll the database back to how version 1 left it
	_, err = c.db.ExecContext(ctx, `ALTER TABLE webhook_events DROP COLUMN verified; DELETE FROM parley_meta WHERE version > 1;`)
	require.NoError(t, err)
	v, err := currentSchemaVersion(ctx, c.db)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	require.NoError(t, EnsureBootstrapped(ctx, c.db))
	v, err = currentSchemaVersion(ctx, c.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	var verifiedCols int
	require.NoError(t, c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.columns WHERE table_name = 'webhook_events' AND column_name = 'verified'`).
		Scan(&verifiedCols))
	assert.Equal(t, 1, verifiedCols)

	require.NoError(t, EnsureBootstrapped(ctx, c.db), "an up-to-date schema is left alone")
}
