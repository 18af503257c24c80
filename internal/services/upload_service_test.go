package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/markdave123-py/parley/internal/core/database"
	"github.com/markdave123-py/parley/internal/models"
)

var errWriteRefused = errors.New("write refused")

// refusingStore fails every settings and agent write.
type refusingStore struct {
	*db.GormClient
}

func (refusingStore) UpsertSetting(context.Context, *models.Setting) error { return errWriteRefused }

func (refusingStore) UpdateAgent(context.Context, *models.Agent) error { return errWriteRefused }

func newUploadService(t *testing.T) (*UploadService, *memObjects, *AgentService) {
	t.Helper()
	store := newDB(t)
	objects := newMemObjects()
	agents := NewAgentService(store)
	return NewUploadService(objects, "parley-assets", NewSettingsService(store, nil), agents), objects, agents
}

func TestUploadLogoUpdatesBranding(t *testing.T) {
	svc, objects, _ := newUploadService(t)

	s, err := svc.UploadLogo(context.Background(), "my logo.png", "", pngHeader)
	require.NoError(t, err)
	require.NotNil(t, s.Branding.LogoPath)
	assert.True(t, strings.HasPrefix(*s.Branding.LogoPath, "https://parley-assets.example.com/branding/logo/"))
	assert.True(t, strings.HasSuffix(*s.Branding.LogoPath, "-my_logo.png"))
	require.Len(t, objects.objects, 1)
	for key, typ := range objects.types {
		assert.Equal(t, "image/png", typ, key)
	}
}

func TestUploadRejectsNonImagesAndOversize(t *testing.T) {
	svc, objects, _ := newUploadService(t)
	ctx := context.Background()

	_, err := svc.UploadLogo(ctx, "notes.txt", "image/png", []byte("just some text"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	big := append(bytes.Clone(pngHeader), make([]byte, MaxLogoBytes)...)
	_, err = svc.UploadLogo(ctx, "big.png", "image/png", big)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UploadLogo(ctx, "empty.png", "image/png", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, objects.objects)
}

func TestUploadThumbnail(t *testing.T) {
	svc, objects, agents := newUploadService(t)
	ctx := context.Background()

	_, err := svc.UploadThumbnail(ctx, "missing", "a.png", "image/png", pngHeader)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.Empty(t, objects.objects)

	a, err := agents.Create(ctx, AgentInput{Title: ptr("Pitch"), ElevenAgentID: ptr("agent_pitch")})
	require.NoError(t, err)

	got, err := svc.UploadThumbnail(ctx, a.ID, "thumb.png", "image/png", pngHeader)
	require.NoError(t, err)
	require.NotNil(t, got.ThumbnailPath)
	assert.Contains(t, *got.ThumbnailPath, "/agents/"+a.ID+"/")
}

func TestUploadWithoutStorage(t *testing.T) {
	store := newDB(t)
	svc := NewUploadService(nil, "", NewSettingsService(store, nil), NewAgentService(store))
	_, err := svc.UploadLogo(context.Background(), "a.png", "image/png", pngHeader)
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestUploadLogoRemovesObjectWhenSettingsWriteFails(t *testing.T) {
	store := refusingStore{newDB(t)}
	objects := newMemObjects()
	svc := NewUploadService(objects, "parley-assets", NewSettingsService(store, nil), NewAgentService(store))

	_, err := svc.UploadLogo(context.Background(), "logo.png", "image/png", pngHeader)
	assert.ErrorIs(t, err, errWriteRefused)
	assert.Empty(t, objects.objects)
}

func TestUploadThumbnailRemovesObjectWhenAgentWriteFails(t *testing.T) {
	base := newDB(t)
	a := seedAgent(t, base, true)
	store := refusingStore{base}
	objects := newMemObjects()
	svc := NewUploadService(objects, "parley-assets", NewSettingsService(store, nil), NewAgentService(store))

	_, err := svc.UploadThumbnail(context.Background(), a.ID, "thumb.png", "image/png", pngHeader)
	assert.ErrorIs(t, err, errWriteRefused)
	assert.Empty(t, objects.objects)

	got, err := base.GetAgent(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ThumbnailPath)
}
