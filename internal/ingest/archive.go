package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
)

// Archive keeps raw binary submissions on disk for later audit.
type Archive struct {
	logger *slog.Logger
	dir    string
}

// NewArchive creates an archive rooted at dir.
func NewArchive(dir string, logger *slog.Logger) *Archive {
	return &Archive{dir: dir, logger: common.OrDefault(logger)}
}

// Save writes payload to <dir>/<uuid>.<kind> and returns the path. Failures
// are logged and reported as "" so that archiving never blocks ingestion.
func (a *Archive) Save(kind model.InputType, payload []byte) string {
	path, err := a.save(kind, payload)
	if err != nil {
		a.logger.Warn("Failed to archive raw input", "input_type", kind, "error", err)
		return ""
	}
	a.logger.Debug("Archived raw input", "path", path, "bytes", len(payload))
	return path
}

func (a *Archive) save(kind model.InputType, payload []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	path := filepath.Join(a.dir, fmt.Sprintf("%s.%s", uuid.NewString(), kind))
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	return path, nil
}
