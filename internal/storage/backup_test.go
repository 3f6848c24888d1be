package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_Backup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	id, err := store.SaveExpense(ctx, testExpense("ana", 99.9, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backups", "intake-backup.db")
	require.NoError(t, store.Backup(ctx, dest))

	restored, err := NewSQLiteStorage(dest)
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	got, err := restored.GetExpense(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, got.Amount, 0.001)
	assert.Equal(t, "ana", got.UserID)
}

func TestSQLiteStorage_BackupErrors(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	existing := filepath.Join(t.TempDir(), "taken.db")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o600))

	tests := []struct {
		name string
		dest string
		want error
	}{
		{"destination exists", existing, ErrBackupExists},
		{"quote in path", filepath.Join(t.TempDir(), "it's.db"), ErrInvalidBackup},
		{"semicolon in path", filepath.Join(t.TempDir(), "a;b.db"), ErrInvalidBackup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.Backup(ctx, tt.dest), tt.want)
		})
	}
}

func TestSQLiteStorage_BackupInMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	err = store.Backup(context.Background(), filepath.Join(t.TempDir(), "mem.db"))
	assert.ErrorIs(t, err, ErrInvalidBackup)
}
