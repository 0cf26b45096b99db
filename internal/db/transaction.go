package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// Primary result codes; extended codes carry them in the low byte.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// Drivers that wrap errors as plain text still mention one of these.
var contentionMarkers = []string{"database is locked", "database is busy", "sqlite_busy"}

// retryPolicy bounds how long a write waits out a locked database. The wait
// before retry n is backoff doubled n-1 times.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func newRetryPolicy(attempts int, backoff time.Duration) retryPolicy {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return retryPolicy{attempts: attempts, backoff: backoff}
}

func (p retryPolicy) delay(retry int) time.Duration {
	return p.backoff << (retry - 1)
}

// run calls fn until it succeeds, fails for a reason other than lock
// contention, or runs out of attempts. The last error is returned.
func (p retryPolicy) run(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			wait := time.NewTimer(p.delay(attempt - 1))
			select {
			case <-ctx.Done():
				wait.Stop()
				return ctx.Err()
			case <-wait.C:
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); !isContention(err) {
			return err
		}
	}
	return err
}

// TransactionWithRetry runs a transaction, retrying while another connection
// holds the database lock. Zero arguments select the defaults.
func (db *DB) TransactionWithRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func(*sql.Tx) error) error {
	return newRetryPolicy(maxAttempts, baseBackoff).run(ctx, func() error {
		return db.Transaction(ctx, fn)
	})
}

func isContention(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
		return false
	}

	message := strings.ToLower(err.Error())
	for _, marker := range contentionMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
