// Package cli provides the command-line interface for parley.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/parley/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool

	cfg         *config.Config
	logger      *slog.Logger
	closeLogger = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Conversational training backend",
	Long: `Parley serves the agent catalog, practice sessions and admin API, and
reconciles post-call webhooks from the voice provider into session results.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(webhookCmd)
}
