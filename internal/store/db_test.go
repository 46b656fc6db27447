package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	client, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewDB(client, PostgresDialect), mock
}

func expectKeyLock(mock sqlmock.Sqlmock, key string) {
	mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.KeyLockSQL)).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestDB_Get(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.GetSQL)).
		WithArgs("data").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{}`)))
	val, err := db.Get(ctx, "data")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(val))

	mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.GetSQL)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = db.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("existing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		expectKeyLock(mock, "data")
		mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.LockSQL)).
			WithArgs("data").
			WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte("a")))
		mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.UpsertSQL)).
			WithArgs("data", []byte("ab")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, db.Update(ctx, "data", appendByte('b')))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent row", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		expectKeyLock(mock, "data")
		mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.LockSQL)).
			WithArgs("data").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.UpsertSQL)).
			WithArgs("data", []byte("b")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var seen []byte
		err := db.Update(ctx, "data", func(cur []byte) ([]byte, error) {
			seen = cur
			return []byte("b"), nil
		})
		require.NoError(t, err)
		assert.Nil(t, seen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key lock failure rolls back before reading", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.KeyLockSQL)).
			WithArgs("data").
			WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		called := false
		err := db.Update(ctx, "data", func([]byte) ([]byte, error) {
			called = true
			return nil, nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock timeout")
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlite takes no key lock", func(t *testing.T) {
		client, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		db := NewDB(client, SQLiteDialect)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(SQLiteDialect.LockSQL)).
			WithArgs("data").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta(SQLiteDialect.UpsertSQL)).
			WithArgs("data", []byte("b")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, db.Update(ctx, "data", appendByte('b')))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("aborted update rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		expectKeyLock(mock, "data")
		mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.LockSQL)).
			WithArgs("data").
			WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte("a")))
		mock.ExpectRollback()

		abort := errors.New("abort")
		err := db.Update(ctx, "data", func([]byte) ([]byte, error) { return nil, abort })
		assert.ErrorIs(t, err, abort)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDB_Migrate(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.CreateSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
