package storage

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
)

func newPostgresWithMock(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return newPostgresStorage(db), mock, func() { _ = db.Close() }
}

func TestRebind(t *testing.T) {
	pg := &sqlStore{dialect: dialectPostgres}
	lite := &sqlStore{dialect: dialectSQLite}

	query := "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestPostgresStorage_SaveExpense(t *testing.T) {
	store, mock, done := newPostgresWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO expenses")).
		WithArgs(
			"u-1", "Uber Eats", 25.5, "MXN", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Food", sqlmock.AnyArg(), "personal", "provider_match",
			model.AutoConfirmActor, sqlmock.AnyArg(), `["Confidence score 1.00"]`, "CONFIRMED",
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.SaveExpense(context.Background(), testExpense("u-1", 25.5, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_GetPendingNotFound(t *testing.T) {
	store, mock, done := newPostgresWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("FROM pending_expenses WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetPending(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_UpdatePendingStatusConflict(t *testing.T) {
	store, mock, done := newPostgresWithMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pending_expenses")).
		WithArgs("REJECTED", nil, sqlmock.AnyArg(), "p-1", "AWAITING_CONFIRMATION").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePendingStatus(context.Background(), "p-1",
		model.StatusAwaitingConfirmation, model.StatusRejected, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_ListExpensesPlaceholders(t *testing.T) {
	store, mock, done := newPostgresWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND category = $2 ORDER BY expense_date DESC, id DESC LIMIT $3")).
		WithArgs("alice", "Food", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "provider_name", "amount", "currency", "expense_date", "description",
			"category", "subcategory", "expense_type", "initial_processing_method",
			"confirmed_by", "confirmed_at", "audit_log", "status",
		}).AddRow(
			int64(1), "alice", "OXXO", 12.0, "MXN", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), nil,
			"Food", nil, "personal", "keyword_match",
			"alice", time.Now(), `[]`, "CONFIRMED",
		))

	got, err := store.ListExpenses(context.Background(), serviceFilter("alice", "Food", 5))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "OXXO", got[0].ProviderName)
	assert.Nil(t, got[0].Description)
	assert.Equal(t, model.MethodKeywordMatch, got[0].InitialProcessingMethod)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Migrate(t *testing.T) {
	store, mock, done := newPostgresWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(postgresSchemaLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, query := range postgresSchema {
		mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
