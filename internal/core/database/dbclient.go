package db

import (
	"context"
	"fmt"

	"github.com/markdave123-py/parley/internal/config"
	"github.com/markdave123-py/parley/internal/core"
)

// NewDbClient picks the persistence backend named by cfg.DBBackend.
func NewDbClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	switch cfg.DBBackend {
	case "", "pgx":
		return NewDatabaseClient(ctx, cfg.DatabaseURL, cfg.SslCertPath)
	case "gorm":
		return NewGormClient(cfg.DBDriver, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported DB_BACKEND %q", cfg.DBBackend)
	}
}
