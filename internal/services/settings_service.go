package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// SettingsService is the only reader and writer of the settings table; callers
// see the typed aggregate, never raw rows.
type SettingsService struct {
	db     core.SettingsStore
	logger *slog.Logger
}

func NewSettingsService(db core.SettingsStore, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{db: db, logger: logger}
}

// Load returns stored settings over the defaults. A section that fails to
// decode keeps its defaults and is logged.
func (s *SettingsService) Load(ctx context.Context) (models.Settings, error) {
	rows, err := s.db.ListSettings(ctx)
	if err != nil {
		return models.Settings{}, fmt.Errorf("list settings: %w", err)
	}
	settings, err := models.ParseSettings(rows)
	if err != nil {
		s.logger.Warn("stored settings did not fully decode", "error", err)
	}
	return settings, nil
}

// Update validates one section and stores it. Fields absent from value keep
// their current values.
func (s *SettingsService) Update(ctx context.Context, key string, value json.RawMessage) (models.Settings, error) {
	if len(value) == 0 {
		return models.Settings{}, fmt.Errorf("%w: value is required", ErrInvalidInput)
	}
	current, err := s.Load(ctx)
	if err != nil {
		return models.Settings{}, err
	}

	section, err := current.DecodeSection(key, value)
	if err != nil {
		return models.Settings{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.db.UpsertSetting(ctx, &models.Setting{Key: key, Value: section}); err != nil {
		return models.Settings{}, fmt.Errorf("save setting %s: %w", key, err)
	}
	s.logger.Info("settings updated", "key", key)
	return s.Load(ctx)
}

// SetLogoPath points the branding section at a newly uploaded logo.
func (s *SettingsService) SetLogoPath(ctx context.Context, path string) (models.Settings, error) {
	value, err := json.Marshal(map[string]string{"logo_path": path})
	if err != nil {
		return models.Settings{}, err
	}
	return s.Update(ctx, models.SettingsKeyBranding, value)
}
