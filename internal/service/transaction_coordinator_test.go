package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func TestTransactionCoordinatorCommits(t *testing.T) {
	provider, mock := newTxProviderMock(t)
	metrics := NewMetricsService()
	coordinator := NewTransactionCoordinator(provider, 0, metrics, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE noop")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := coordinator.Run(context.Background(), "test", func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE noop")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, uint64(1), metrics.Snapshot().TransactionsCommitted)
}

func TestTransactionCoordinatorReturnsTypedErrorsUnchanged(t *testing.T) {
	provider, mock := newTxProviderMock(t)
	coordinator := NewTransactionCoordinator(provider, 0, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	domainErr := appErrors.WithDetail(appErrors.Clone(appErrors.ErrNotEnrolled, "student stu-9 is not enrolled"), "student_id", "stu-9")
	err := coordinator.Run(context.Background(), "test", func(ctx context.Context, tx *sqlx.Tx) error {
		return domainErr
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
	assert.False(t, appErrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCoordinatorRollsBackOnPanic(t *testing.T) {
	provider, mock := newTxProviderMock(t)
	coordinator := NewTransactionCoordinator(provider, 0, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = coordinator.Run(context.Background(), "test", func(ctx context.Context, tx *sqlx.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCoordinatorClassifiesStorageFaults(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, code: appErrors.ErrTransactionAborted.Code, retryable: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, code: appErrors.ErrTransactionAborted.Code, retryable: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, code: appErrors.ErrTransactionAborted.Code, retryable: true},
		{name: "unique violation", err: &pq.Error{Code: "23505", Constraint: "grade_entries_natural_key"}, code: appErrors.ErrConflict.Code},
		{name: "other storage error", err: errors.New("disk full"), code: appErrors.ErrTransactionAborted.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider, mock := newTxProviderMock(t)
			coordinator := NewTransactionCoordinator(provider, 0, nil, nil)

			mock.ExpectBegin()
			mock.ExpectRollback()

			err := coordinator.Run(context.Background(), "test", func(ctx context.Context, tx *sqlx.Tx) error {
				return tc.err
			})
			appErr := appErrors.FromError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.retryable, appErrors.IsRetryable(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransactionCoordinatorBeginFailureIsRetryable(t *testing.T) {
	provider, mock := newTxProviderMock(t)
	coordinator := NewTransactionCoordinator(provider, 0, nil, nil)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := coordinator.Run(context.Background(), "test", func(ctx context.Context, tx *sqlx.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, errors.Is(err, appErrors.ErrTransactionAborted))
	assert.True(t, appErrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCoordinatorCommitFailure(t *testing.T) {
	provider, mock := newTxProviderMock(t)
	coordinator := NewTransactionCoordinator(provider, 0, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection reset by peer"))

	err := coordinator.Run(context.Background(), "test", func(ctx context.Context, tx *sqlx.Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransactionAborted))
	assert.True(t, appErrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
