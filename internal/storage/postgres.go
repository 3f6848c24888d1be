package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/spice-intake/internal/service"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// PostgresStorage implements service.ExpenseStore using PostgreSQL.
type PostgresStorage struct {
	sqlStore
}

var _ service.ExpenseStore = (*PostgresStorage)(nil)

// NewPostgresStorage connects to PostgreSQL using a pgx connection string.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newPostgresStorage(db), nil
}

func newPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{sqlStore: sqlStore{db: db, dialect: dialectPostgres}}
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Migrate creates any missing tables and indexes.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return migratePostgres(ctx, s.db)
}
