package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	db "github.com/markdave123-py/parley/internal/core/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		client, err := db.NewDbClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		logger.Info("schema is up to date", "backend", cfg.DBBackend)
		return nil
	},
}
