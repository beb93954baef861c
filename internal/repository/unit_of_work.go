package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sjperalta/lendcore-api/pkg/logger"
	"gorm.io/gorm"
)

// ErrTxConflict is returned when a transaction kept failing with
// serialization or deadlock errors until the retry budget ran out
var ErrTxConflict = errors.New("transaction conflict: retries exhausted")

// Postgres SQLSTATE codes that mean "run the whole transaction again"
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Store exposes the repositories that take part in one unit of work. All of
// them share the same transaction.
type Store interface {
	Loans() LoanRepository
	Schedule() ScheduleRepository
	Repayments() RepaymentRepository
}

// UnitOfWork runs fn inside a single database transaction. If fn returns an
// error the transaction is rolled back. fn may run more than once when the
// database reports a serialization conflict, so it must not keep state
// between attempts.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(store Store) error) error
}

type gormStore struct {
	tx *gorm.DB
}

func (s *gormStore) Loans() LoanRepository { return NewLoanRepository(s.tx) }

func (s *gormStore) Schedule() ScheduleRepository { return NewScheduleRepository(s.tx) }

func (s *gormStore) Repayments() RepaymentRepository { return NewRepaymentRepository(s.tx) }

type gormUnitOfWork struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
}

// NewUnitOfWork creates a transactional unit of work over db
func NewUnitOfWork(db *gorm.DB, maxRetries int) UnitOfWork {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &gormUnitOfWork{
		db:         db,
		maxRetries: maxRetries,
		backoff:    25 * time.Millisecond,
	}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(store Store) error) error {
	return retryTx(ctx, u.maxRetries, u.backoff, func() error {
		return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&gormStore{tx: tx})
		})
	})
}

// retryTx runs attempt up to maxRetries+1 times while it fails with a
// retryable error, waiting a linearly growing backoff between attempts
func retryTx(ctx context.Context, maxRetries int, backoff time.Duration, attempt func() error) error {
	var err error
	for n := 0; n <= maxRetries; n++ {
		err = attempt()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if n == maxRetries {
			break
		}

		logger.Warn("Transaction conflict, retrying",
			"attempt", n+1,
			"max_retries", maxRetries,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(n+1) * backoff):
		}
	}

	return fmt.Errorf("%w: %v", ErrTxConflict, err)
}

// IsRetryable reports whether err is a serialization failure or deadlock
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}
