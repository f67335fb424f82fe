package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"token", "account_id", "authname", "session_index", "created_at", "expires_at",
	})
}

func TestPostgresSessionEnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS sessions_account_id_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	sess := newTestSession("tok-1", 7)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sess.Token, sess.AccountID, sess.Authname, sess.SessionIndex, sess.CreatedAt, sess.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	require.NoError(t, store.Create(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionGet(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery("SELECT token, account_id, authname, session_index, created_at, expires_at\\s+FROM sessions WHERE token").
		WithArgs("tok-1").
		WillReturnRows(sessionRows().AddRow("tok-1", 7, "alice@idp.example.com", "idx-1", now, now.Add(time.Hour)))

	store := NewPostgresStore(db)
	got, err := store.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.AccountID)
	assert.Equal(t, "alice@idp.example.com", got.Authname)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionGetMissing(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT token, account_id, authname, session_index, created_at, expires_at\\s+FROM sessions WHERE token").
		WithArgs("no-such").
		WillReturnRows(sessionRows())

	store := NewPostgresStore(db)
	_, err := store.Get(context.Background(), "no-such")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionDelete(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("DELETE FROM sessions WHERE token").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	require.NoError(t, store.Delete(context.Background(), "tok-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionDeleteByAccount(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("DELETE FROM sessions WHERE account_id").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	store := NewPostgresStore(db)
	require.NoError(t, store.DeleteByAccount(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionCleanupExpired(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewPostgresStore(db)
	n, err := store.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
