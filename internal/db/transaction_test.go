package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	_, err = database.MigrateUp(context.Background())
	require.NoError(t, err)
	return database
}

func TestRetryPolicyRetriesWhileLocked(t *testing.T) {
	attempts := 0
	err := newRetryPolicy(3, time.Millisecond).run(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryPolicyStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	err := newRetryPolicy(3, time.Millisecond).run(context.Background(), func() error {
		attempts++
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, 1, attempts)
}

func TestRetryPolicyReturnsLastErrorWhenExhausted(t *testing.T) {
	attempts := 0
	err := newRetryPolicy(2, time.Millisecond).run(context.Background(), func() error {
		attempts++
		return fmt.Errorf("attempt %d: database is busy", attempts)
	})
	require.EqualError(t, err, "attempt 2: database is busy")
	require.Equal(t, 2, attempts)
}

func TestRetryPolicyCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newRetryPolicy(3, time.Millisecond).run(ctx, func() error {
		t.Fatal("fn must not run on a canceled context")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyDefaultsAndBackoff(t *testing.T) {
	p := newRetryPolicy(0, 0)
	require.Equal(t, 3, p.attempts)
	require.Equal(t, 50*time.Millisecond, p.delay(1))
	require.Equal(t, 100*time.Millisecond, p.delay(2))
	require.Equal(t, 200*time.Millisecond, p.delay(3))
}

func TestIsContention(t *testing.T) {
	require.True(t, isContention(errors.New("SQLITE_BUSY: try again")))
	require.True(t, isContention(fmt.Errorf("commit: %w", errors.New("database is locked"))))
	require.False(t, isContention(nil))
	require.False(t, isContention(errors.New("no such table: messages")))
	require.False(t, isContention(context.DeadlineExceeded))
}

func TestTransactionWithRetry(t *testing.T) {
	db := setupTestDB(t)

	attempts := 0
	err := db.TransactionWithRetry(context.Background(), 3, time.Millisecond, func(tx *sql.Tx) error {
		attempts++
		if attempts < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	applied, err := db.MigrateUp(context.Background())
	require.NoError(t, err)
	require.Zero(t, applied)

	version, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
}
