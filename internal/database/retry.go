package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/constants"
	"chatrelay/internal/retry"

	"github.com/mattn/go-sqlite3"
)

var dbRetry = retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond / 10,
	MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond / 10,
	Multiplier:   2,
	MaxAttempts:  3,
	Jitter:       true,
}

// withRetry runs a write that may hit a busy database.
func withRetry(ctx context.Context, operationName string, operation func() error) error {
	err := retry.NewBackoff(dbRetry).RetryWithPredicate(ctx, operation, isRetryableDBError)
	if err != nil {
		return fmt.Errorf("%s: %w", operationName, err)
	}
	return nil
}

// isRetryableDBError reports whether err is a transient SQLite condition
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
		return true
	}
	return false
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
