package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/storage"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every command migrates on startup; this one only does that and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db := opts.cfg.Database
			backend := "sqlite"
			target := db.Path
			if storage.IsPostgresURL(db.URL) {
				backend = "postgres"
				target = "(url)"
			}
			slog.Info("Running database migrations", "backend", backend, "database", target)

			store, err := storage.Open(cmd.Context(), db.URL, db.Path)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close storage", "error", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database migrations completed successfully"))
			return err
		},
	}
}
