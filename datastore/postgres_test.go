package datastore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/xianyu-autodeliver/models"
)

func newMockPostgresStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_PutUsesNumberedParams(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	record := newRecord("O1", models.PlanThreeMonths, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs("O1", record.ID, record.Title, 3, toMillis(record.DeliveredAt), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Put(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutDuplicate(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO delivery_records").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Message: "duplicate key value violates unique constraint"})

	err := store.Put(context.Background(), newRecord("O1", models.PlanOneMonth, time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutWriteFailureIsFatal(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO delivery_records").
		WillReturnError(errors.New("connection reset by peer"))

	err := store.Put(context.Background(), newRecord("O1", models.PlanOneMonth, time.Now()))
	assert.ErrorIs(t, err, ErrStorageWrite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Has(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = $1 AND success")).
		WithArgs("O1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = $1 AND success")).
		WithArgs("O2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	has, err := store.Has(context.Background(), "O1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.Has(context.Background(), "O2")
	require.NoError(t, err)
	assert.False(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAll(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT order_id FROM delivery_records").
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow("O1").AddRow("O2"))

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"O1": {}, "O2": {}}, all)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountFailedAttempts(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = $1 AND status = $2")).
		WithArgs("O1", "failed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountFailedAttempts(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	pg := NewPostgresStore(nil)
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := newSQLStore(nil, dialect{name: DriverSQLite})
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}
