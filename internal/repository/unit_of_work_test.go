package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped deadlock", fmt.Errorf("update item: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"})

	assert.True(t, isDuplicateKeyError(err, "idx_users_email"))
	assert.False(t, isDuplicateKeyError(err, "idx_branches_code"))
	assert.False(t, isDuplicateKeyError(errors.New("boom"), "idx_users_email"))
}

func TestNewUnitOfWork_ClampsNegativeRetries(t *testing.T) {
	uow := NewUnitOfWork(nil, -2).(*gormUnitOfWork)
	assert.Equal(t, 0, uow.maxRetries)
}

func TestRetryTx(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40001"}

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := retryTx(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return conflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		start := time.Now()
		err := retryTx(context.Background(), 2, 50*time.Millisecond, func() error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, ErrTxConflict)
		assert.Equal(t, 3, calls)
		// Waits 50ms + 100ms between attempts and nothing after the last one
		assert.Less(t, time.Since(start), 300*time.Millisecond)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("insert failed")
		err := retryTx(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return boom
		})
		assert.Equal(t, boom, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retryTx(ctx, 5, time.Hour, func() error {
			calls++
			cancel()
			return conflict
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero retries runs once", func(t *testing.T) {
		calls := 0
		err := retryTx(context.Background(), 0, time.Hour, func() error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, ErrTxConflict)
		assert.Equal(t, 1, calls)
	})
}
