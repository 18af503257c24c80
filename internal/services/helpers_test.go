package services

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	db "github.com/markdave123-py/parley/internal/core/database"
	"github.com/markdave123-py/parley/internal/models"
)

func newDB(t *testing.T) *db.GormClient {
	t.Helper()
	c, err := db.NewGormClient("sqlite", filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seedUser(t *testing.T, store *db.GormClient, role models.Role) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: role}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func seedAgent(t *testing.T, store *db.GormClient, active bool) *models.Agent {
	t.Helper()
	a := &models.Agent{ID: uuid.NewString(), Title: "Salary negotiation", ElevenAgentID: "agent_" + uuid.NewString()[:8], IsActive: active, Tags: []string{}}
	require.NoError(t, store.CreateAgent(context.Background(), a))
	return a
}

func seedSession(t *testing.T, store *db.GormClient, userID, agentID string) *models.Session {
	t.Helper()
	s := &models.Session{ID: uuid.NewString(), UserID: userID, AgentID: agentID, Status: models.SessionStatusPending, StartedAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateSession(context.Background(), s))
	return s
}

// memObjects is an in-memory core.ObjectClient.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) UploadFile(_ context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return "https://" + bucket + ".example.com/" + key, nil
}

func (m *memObjects) DeleteFile(_ context.Context, _, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
