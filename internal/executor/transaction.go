package executor

import (
	"context"
	"fmt"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/translator"
)

// ExecInTransaction runs fn inside a database transaction.
// On success the transaction is committed; on error it is rolled back.
func ExecInTransaction(ctx context.Context, db database.DB, fn func(tx database.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ExecWithoutTransaction executes a statement directly, outside any
// transaction. Required for statements like CREATE INDEX CONCURRENTLY
// which cannot run inside a transaction block.
func ExecWithoutTransaction(ctx context.Context, q database.Querier, stmt translator.Statement) error {
	if _, err := q.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("executing outside transaction: %w", err)
	}

	return nil
}
