package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

const (
	MaxLogoBytes      = 2 << 20
	MaxThumbnailBytes = 5 << 20
)

var ErrStorageDisabled = errors.New("object storage not configured")

// UploadService stores admin images unmodified and points settings or agents at them.
type UploadService struct {
	storage  core.ObjectClient
	bucket   string
	settings *SettingsService
	agents   *AgentService
}

// NewUploadService accepts a nil storage; every upload then fails with ErrStorageDisabled.
func NewUploadService(storage core.ObjectClient, bucket string, settings *SettingsService, agents *AgentService) *UploadService {
	return &UploadService{storage: storage, bucket: bucket, settings: settings, agents: agents}
}

// UploadLogo stores a branding logo and records its URL in branding.logo_path.
func (s *UploadService) UploadLogo(ctx context.Context, filename, contentType string, data []byte) (models.Settings, error) {
	key, url, err := s.put(ctx, path.Join("branding", "logo"), filename, contentType, data, MaxLogoBytes)
	if err != nil {
		return models.Settings{}, err
	}
	settings, err := s.settings.SetLogoPath(ctx, url)
	if err != nil {
		s.discard(ctx, key)
		return models.Settings{}, err
	}
	return settings, nil
}

// UploadThumbnail stores an agent thumbnail. The agent must exist before anything is uploaded.
func (s *UploadService) UploadThumbnail(ctx context.Context, agentID, filename, contentType string, data []byte) (*models.Agent, error) {
	if _, err := s.agents.Get(ctx, agentID); err != nil {
		return nil, err
	}
	key, url, err := s.put(ctx, path.Join("agents", agentID), filename, contentType, data, MaxThumbnailBytes)
	if err != nil {
		return nil, err
	}
	agent, err := s.agents.SetThumbnail(ctx, agentID, url)
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}
	return agent, nil
}

// put validates and stores data, returning the object key and its public URL.
func (s *UploadService) put(ctx context.Context, prefix, filename, contentType string, data []byte, limit int) (string, string, error) {
	if s.storage == nil {
		return "", "", ErrStorageDisabled
	}
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if len(data) > limit {
		return "", "", fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, limit)
	}
	contentType, err := imageContentType(contentType, data)
	if err != nil {
		return "", "", err
	}

	key := path.Join(prefix, uuid.NewString()+"-"+cleanFilename(filename))
	url, err := s.storage.UploadFile(ctx, s.bucket, key, bytes.NewReader(data), contentType)
	if err != nil {
		return "", "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, url, nil
}

// discard removes an object nothing ended up pointing at.
func (s *UploadService) discard(ctx context.Context, key string) {
	if err := s.storage.DeleteFile(context.WithoutCancel(ctx), s.bucket, key); err != nil {
		slog.WarnContext(ctx, "orphaned upload not removed", "bucket", s.bucket, "key", key, "error", err)
	}
}

// imageContentType trusts the declared type only when the bytes agree it is an image.
func imageContentType(declared string, data []byte) (string, error) {
	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, "image/") {
		return "", fmt.Errorf("%w: file must be an image", ErrInvalidInput)
	}
	declared = strings.TrimSpace(strings.ToLower(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared, nil
	}
	return sniffed, nil
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
