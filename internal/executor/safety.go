package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aqasim81/changelog-migrate/internal/database"
)

// SetLockTimeout sets lock_timeout for the rest of the transaction.
// This causes the step to fail fast if it cannot acquire a table lock
// within the specified duration, instead of blocking other queries.
func SetLockTimeout(ctx context.Context, tx database.Tx, timeout time.Duration) error {
	sql := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("setting lock_timeout: %w", err)
	}

	return nil
}

// SetStatementTimeout sets statement_timeout for the rest of the transaction.
// This prevents runaway statements from holding locks indefinitely.
func SetStatementTimeout(ctx context.Context, tx database.Tx, timeout time.Duration) error {
	sql := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeout.Milliseconds())

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("setting statement_timeout: %w", err)
	}

	return nil
}

// applyTimeouts sets the configured timeouts on dialects that have them.
// SET LOCAL scopes them to tx, so pooled connections come back clean.
func (e *Executor) applyTimeouts(ctx context.Context, tx database.Tx) error {
	if !e.db.Dialect().SupportsTimeouts {
		return nil
	}

	if e.lockTimeout > 0 {
		if err := SetLockTimeout(ctx, tx, e.lockTimeout); err != nil {
			return err
		}
	}

	if e.statementTimeout > 0 {
		if err := SetStatementTimeout(ctx, tx, e.statementTimeout); err != nil {
			return err
		}
	}

	return nil
}
