package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/parley/internal/config"
	"github.com/markdave123-py/parley/internal/core"
	db "github.com/markdave123-py/parley/internal/core/database"
	objectclient "github.com/markdave123-py/parley/internal/core/object-client"
	webhook "github.com/markdave123-py/parley/internal/core/webhook_engine"
	"github.com/markdave123-py/parley/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Services     *Services
	Server       *Server
}

// Services is the wired service layer shared by the HTTP server and the CLI.
type Services struct {
	Tokens   *services.TokenService
	Users    *services.UserService
	Agents   *services.AgentService
	Sessions *services.SessionService
	Settings *services.SettingsService
	Uploads  *services.UploadService
	Webhooks *services.WebhookService
}

// NewServices wires every service over one store. objects may be nil when
// object storage is not configured.
func NewServices(cfg *config.Config, store core.DbClient, objects core.ObjectClient, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	agents := services.NewAgentService(store)
	settings := services.NewSettingsService(store, logger)

	pipeline := webhook.NewPipeline(store, cfg.WebhookSecret, webhook.Config{
		Provider:           webhook.ProviderElevenLabs,
		SignatureTolerance: cfg.WebhookTimestampTolerance,
	}, logger)

	return &Services{
		Tokens:   tokens,
		Users:    services.NewUserService(store, tokens),
		Agents:   agents,
		Sessions: services.NewSessionService(store, webhook.ProviderElevenLabs, cfg.WebhookFallbackScanLimit),
		Settings: settings,
		Uploads:  services.NewUploadService(objects, cfg.BucketName, settings, agents),
		Webhooks: services.NewWebhookService(pipeline, store, webhook.ProviderElevenLabs),
	}
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	dbClient, err := db.NewDbClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready", "backend", cfg.DBBackend)

	var objects core.ObjectClient
	if cfg.ObjectStorageEnabled() {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			_ = dbClient.Close()
			return nil, err
		}
		objects = s3Client
		logger.Info("object client initialized and ready", "bucket", cfg.BucketName)
	} else {
		logger.Warn("object storage not configured, uploads are disabled")
	}

	if cfg.WebhookSecret == "" {
		logger.Warn("ELEVENLABS_WEBHOOK_SECRET not set, webhooks rely on the secret stored in settings")
	}

	svcs := NewServices(cfg, dbClient, objects, logger)
	return &App{
		DBClient:     dbClient,
		ObjectClient: objects,
		Services:     svcs,
		Server:       NewServer(cfg, svcs, logger),
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
