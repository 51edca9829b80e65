package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	maxBackoffDuration = 10 * time.Second
	backoffInterval    = 100 * time.Millisecond
)

var retryablePQCodes = map[pq.ErrorCode]bool{
	"55P03": true, // lock_not_available
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// isRetryable reports whether err is a transient lock or conflict error
func isRetryable(err error) bool {
	pqErr := &pq.Error{}
	if errors.As(err, &pqErr) {
		return retryablePQCodes[pqErr.Code]
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// withRetryableTx runs f in a transaction, retrying on lock errors with backoff
func withRetryableTx(ctx context.Context, db *sql.DB, f func(context.Context, *sql.Tx) error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		err = f(ctx, tx)
		if err == nil {
			err = tx.Commit()
			if err == nil || !isRetryable(err) {
				return err
			}
		} else if errRollback := tx.Rollback(); errRollback != nil {
			return errRollback
		}

		if !isRetryable(err) {
			return err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return err
		}
	}
}

// pingWithBackoff waits for the database to accept connections until ctx expires
func pingWithBackoff(ctx context.Context, db *sql.DB, onRetry func(error, time.Duration)) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		wait := b.Duration()
		if onRetry != nil {
			onRetry(err, wait)
		}
		if ctxErr := sleepCtx(ctx, wait); ctxErr != nil {
			return fmt.Errorf("%w (last error: %v)", ctxErr, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
