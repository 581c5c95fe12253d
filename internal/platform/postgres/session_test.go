package postgres_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/pgscope/internal/platform/logger"
	"github.com/phrazzld/pgscope/internal/platform/postgres"
	"github.com/phrazzld/pgscope/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSession_BeginNestsScopes(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx, _ := logger.NewTestContext(t)
	reg := scope.NewRegistry()

	sess, err := postgres.OpenSession(ctx, db, reg, nil)
	require.NoError(t, err)
	defer func() { _ = sess.Close(ctx) }()

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO scope_probe (label) VALUES ($1)").
		WithArgs(sqlmock.AnyArg(), "inner").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = scope.Run(ctx, sess, func(ctx context.Context, top *scope.Scope) error {
		assert.Equal(t, sess.ID(), top.ConnID())
		return scope.Run(ctx, sess, func(ctx context.Context, sp *scope.Scope) error {
			assert.True(t, sp.IsSavepoint())
			return sess.Exec(ctx, "INSERT INTO scope_probe (label) VALUES ($1)", "inner")
		})
	})

	require.NoError(t, err)
	assert.Empty(t, reg.Snapshot(sess.ID()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ClosePurgesRegistry(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx, logs := logger.NewTestContext(t)
	reg := scope.NewRegistry()

	sess, err := postgres.OpenSession(ctx, db, reg, nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	top, err := sess.Begin(ctx)
	require.NoError(t, err)
	sp, err := sess.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.Close(ctx))

	assert.False(t, top.Open())
	assert.False(t, sp.Open())
	assert.Empty(t, reg.Snapshot(sess.ID()))
	logger.AssertLogContains(t, logs, "abandoned open transactions")

	issued, err := sp.Rollback(ctx)
	require.NoError(t, err)
	assert.False(t, issued, "no SQL after the session is gone")

	_, err = sess.Begin(ctx)
	assert.ErrorIs(t, err, postgres.ErrSessionClosed)
	assert.ErrorIs(t, sess.Exec(ctx, "SELECT 1"), postgres.ErrSessionClosed)
	assert.NoError(t, sess.Close(ctx), "closing twice is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ReconnectKeepsIdentity(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	ctx, _ := logger.NewTestContext(t)
	reg := scope.NewRegistry()

	sess, err := postgres.OpenSession(ctx, db, reg, nil)
	require.NoError(t, err)
	defer func() { _ = sess.Close(ctx) }()
	id := sess.ID()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()

	stale, err := sess.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.Reconnect(ctx))

	assert.Equal(t, id, sess.ID())
	assert.False(t, stale.Open())
	assert.False(t, sess.Conn().InTransaction())

	fresh, err := sess.Begin(ctx)
	require.NoError(t, err)
	assert.False(t, fresh.IsSavepoint(), "the new connection starts a new transaction")
	assert.Greater(t, fresh.TxID(), stale.TxID())
	assert.NoError(t, mock.ExpectationsWereMet())
}
