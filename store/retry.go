package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Miminimi234/lawl/backoff"
)

const maxBusyRetries = 3

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx executes fn inside a transaction with automatic retry on
// SQLITE_BUSY: up to 3 attempts with 100/200/300 ms waits. fn must be safe
// to re-run; on error the transaction is rolled back, so a failed batch
// leaves no partial rows behind.
func (s *Store) RunTx(ctx context.Context, fn func(*sql.Tx) error) error {
	for i := 0; i < maxBusyRetries; i++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsBusy(err) || i == maxBusyRetries-1 {
			return err
		}
		if err := backoff.Sleep(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return fmt.Errorf("store: context cancelled during busy retry: %w", err)
		}
	}
	return fmt.Errorf("store: RunTx: max retries exceeded")
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
