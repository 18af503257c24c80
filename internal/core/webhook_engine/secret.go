package webhook_engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// SecretResolver finds the webhook secret for each request so it can be
// rotated from the admin settings without a redeploy.
type SecretResolver struct {
	settings core.SettingsStore
	static   string
	logger   *slog.Logger
}

func NewSecretResolver(settings core.SettingsStore, static string, logger *slog.Logger) *SecretResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecretResolver{settings: settings, static: static, logger: logger}
}

// Resolve returns the settings secret, then the static one, else ErrSecretNotConfigured.
func (r *SecretResolver) Resolve(ctx context.Context) (string, error) {
	if r.settings != nil {
		row, err := r.settings.GetSetting(ctx, models.SettingsKeyElevenLabs)
		switch {
		case err == nil:
			s, perr := models.ParseSettings([]models.Setting{*row})
			if perr != nil {
				r.logger.Warn("webhook secret setting is unreadable, using static secret", "error", perr)
			} else if s.ElevenLabs.Secret != "" {
				return s.ElevenLabs.Secret, nil
			}
		case errors.Is(err, core.ErrNotFound):
		default:
			r.logger.Error("read webhook secret from settings failed, using static secret", "error", err)
		}
	}

	if r.static != "" {
		return r.static, nil
	}
	return "", ErrSecretNotConfigured
}
