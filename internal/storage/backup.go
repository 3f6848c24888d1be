package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backup errors.
var (
	ErrBackupExists   = errors.New("backup destination already exists")
	ErrInvalidBackup  = errors.New("invalid backup destination")
	ErrBackupNotValid = errors.New("backup integrity check failed")
)

// Backup writes a consistent copy of the database to destPath. The WAL is
// folded into the main file first so the copy includes recent writes.
func (s *SQLiteStorage) Backup(ctx context.Context, destPath string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if s.dbPath == ":memory:" {
		return fmt.Errorf("%w: in-memory databases cannot be backed up", ErrInvalidBackup)
	}

	dest, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	// VACUUM INTO takes a string literal, so the path is interpolated.
	if strings.ContainsAny(dest, "'\";") {
		return fmt.Errorf("%w: path contains forbidden characters", ErrInvalidBackup)
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s", ErrBackupExists, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	// #nosec G201 -- dest is absolute and free of quote characters
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}

	return verifyBackup(ctx, dest)
}

func verifyBackup(ctx context.Context, path string) error {
	backup, err := NewSQLiteStorage(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackupNotValid, err)
	}
	defer func() { _ = backup.Close() }()

	var result string
	if err := backup.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupNotValid, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrBackupNotValid, result)
	}
	return nil
}
