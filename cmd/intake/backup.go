package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/storage"
)

func backupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the SQLite database to a backup file",
		Long: `Write a consistent snapshot of the SQLite database. PostgreSQL
deployments should use pg_dump instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db := opts.cfg.Database
			if storage.IsPostgresURL(db.URL) {
				return errors.New("backup only supports SQLite; use pg_dump for PostgreSQL")
			}

			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				name := fmt.Sprintf("intake-%s.db", time.Now().Format("20060102-150405"))
				output = filepath.Join(filepath.Dir(db.Path), "backups", name)
			}

			store, err := storage.NewSQLiteStorage(db.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := store.Backup(cmd.Context(), output); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Backup written to "+output))
			return err
		},
	}

	cmd.Flags().StringP("output", "o", "", "backup file (default: backups/ next to the database)")

	return cmd
}
