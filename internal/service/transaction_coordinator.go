package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/tracing"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TxFunc is the body of a unit of work. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// TransactionCoordinator runs ledger writes as all-or-nothing units of work
// on the storage handle it was built with.
type TransactionCoordinator struct {
	db      txProvider
	timeout time.Duration
	metrics *MetricsService
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewTransactionCoordinator builds a coordinator. A zero timeout leaves the
// caller's deadline untouched.
func NewTransactionCoordinator(db txProvider, timeout time.Duration, metrics *MetricsService, logger *zap.Logger) *TransactionCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionCoordinator{
		db:      db,
		timeout: timeout,
		metrics: metrics,
		tracer:  otel.Tracer(tracing.InstrumentationName),
		logger:  logger,
	}
}

// Run begins a READ COMMITTED transaction, invokes fn and commits only when
// fn returns nil. Errors and panics roll the whole unit back; panics are
// re-raised after rollback. Storage faults come back as TRANSACTION_ABORTED
// and uniqueness violations as CONFLICT; errors already typed by fn are
// returned unchanged.
func (c *TransactionCoordinator) Run(ctx context.Context, label string, fn TxFunc) (err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, span := c.tracer.Start(ctx, "ledger.tx "+label, trace.WithAttributes(attribute.String("ledger.tx.label", label)))
	defer span.End()

	start := time.Now()
	outcome := OutcomeCommitted
	defer func() {
		c.metrics.ObserveTransaction(label, outcome, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	tx, beginErr := c.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if beginErr != nil {
		outcome = OutcomeAborted
		err = abortedError(beginErr, label, "failed to begin transaction")
		c.logger.Warn("begin transaction failed", zap.String("label", label), zap.Error(beginErr))
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			outcome = OutcomeRolledBack
			c.logger.Error("transaction panicked", zap.String("label", label), zap.Any("panic", p))
			panic(p)
		}
	}()

	if fnErr := fn(ctx, tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Warn("rollback failed", zap.String("label", label), zap.Error(rbErr))
		}
		outcome = OutcomeRolledBack
		err = classifyTxError(fnErr, label)
		c.logger.Info("transaction rolled back", zap.String("label", label), zap.String("code", appErrors.FromError(err).Code), zap.Error(fnErr))
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		outcome = OutcomeAborted
		err = classifyTxError(commitErr, label)
		if appErrors.FromError(err).Code != appErrors.ErrConflict.Code {
			err = abortedError(commitErr, label, "failed to commit transaction")
		}
		c.logger.Warn("commit failed", zap.String("label", label), zap.Error(commitErr))
		return err
	}
	c.logger.Debug("transaction committed", zap.String("label", label), zap.Duration("duration", time.Since(start)))
	return nil
}

func abortedError(err error, label, message string) error {
	aborted := appErrors.Wrap(err, appErrors.ErrTransactionAborted.Code, appErrors.ErrTransactionAborted.Status, message)
	aborted.Retryable = true
	return appErrors.WithDetail(aborted, "label", label)
}

// classifyTxError maps an error raised inside a unit of work to the ledger taxonomy.
func classifyTxError(err error, label string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		conflict := appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "concurrent write on the same natural key")
		if pqErr.Constraint != "" {
			conflict = appErrors.WithDetail(conflict, "constraint", pqErr.Constraint)
		}
		return appErrors.WithDetail(conflict, "label", label)
	}

	if isTransientStorageError(err) {
		return abortedError(err, label, "transaction aborted by storage")
	}

	aborted := appErrors.Wrap(err, appErrors.ErrTransactionAborted.Code, appErrors.ErrTransactionAborted.Status, "transaction aborted")
	return appErrors.WithDetail(aborted, "label", label)
}

// classifyStorageError maps a storage error raised outside a unit of work.
// Transient faults are retryable TRANSACTION_ABORTED; anything untyped
// otherwise becomes INTERNAL_ERROR with message.
func classifyStorageError(err error, label, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if isTransientStorageError(err) {
		return abortedError(err, label, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// isTransientStorageError reports serialization failures, deadlocks, lost
// connections and expired deadlines.
func isTransientStorageError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "40001", pqErr.Code == "40P01", pqErr.Code.Class() == "08":
			return true
		}
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone)
}
