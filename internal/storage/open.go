package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/service"
)

// Open returns a PostgreSQL store when databaseURL is set and a SQLite store
// at sqlitePath when it is empty. Any other URL is a configuration error.
// The schema is migrated before returning.
func Open(ctx context.Context, databaseURL, sqlitePath string) (service.ExpenseStore, error) {
	var (
		store service.ExpenseStore
		err   error
	)

	switch {
	case strings.TrimSpace(databaseURL) == "":
		store, err = NewSQLiteStorage(sqlitePath)
	case IsPostgresURL(databaseURL):
		store, err = NewPostgresStorage(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("%w: database.url must be a postgres:// or postgresql:// URL, got scheme of %q",
			common.ErrInvalidConfig, scheme(databaseURL))
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// IsPostgresURL reports whether url names a PostgreSQL database.
func IsPostgresURL(url string) bool {
	url = strings.TrimSpace(url)
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// scheme keeps credentials in the URL out of error messages.
func scheme(url string) string {
	url = strings.TrimSpace(url)
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i]
	}
	return url
}
