package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS expenses (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					provider_name TEXT NOT NULL,
					amount REAL NOT NULL,
					currency TEXT NOT NULL,
					expense_date DATE NOT NULL,
					description TEXT,
					category TEXT NOT NULL,
					subcategory TEXT,
					expense_type TEXT NOT NULL,
					initial_processing_method TEXT,
					confirmed_by TEXT NOT NULL,
					confirmed_at DATETIME NOT NULL,
					audit_log TEXT NOT NULL DEFAULT '[]',
					status TEXT NOT NULL DEFAULT 'CONFIRMED'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Keep deferred expenses for manual confirmation",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS pending_expenses (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					provisional TEXT NOT NULL,
					match_metadata TEXT NOT NULL,
					status TEXT NOT NULL,
					expense_id INTEGER REFERENCES expenses(id),
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_pending_user_status ON pending_expenses(user_id, status)`,
			})
		},
	},
}

const postgresSchemaLock int64 = 7_230_615_001

// postgresSchema mirrors the SQLite migrations for PostgreSQL.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS expenses (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider_name TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		currency VARCHAR(3) NOT NULL,
		expense_date DATE NOT NULL,
		description TEXT,
		category TEXT NOT NULL,
		subcategory TEXT,
		expense_type TEXT NOT NULL,
		initial_processing_method TEXT,
		confirmed_by TEXT NOT NULL,
		confirmed_at TIMESTAMPTZ NOT NULL,
		audit_log TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'CONFIRMED'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date)`,
	`CREATE TABLE IF NOT EXISTS pending_expenses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provisional TEXT NOT NULL,
		match_metadata TEXT NOT NULL,
		status TEXT NOT NULL,
		expense_id BIGINT REFERENCES expenses(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_user_status ON pending_expenses(user_id, status)`,
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	var currentVersion int
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

func migratePostgres(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize DDL across processes starting against the same database.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresSchemaLock); err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}

	for _, query := range postgresSchema {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}
