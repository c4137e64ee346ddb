package database

import (
	"context"
	"fmt"
)

// SchemaLockID is the PostgreSQL advisory lock key taken while bootstrapping
// the bookkeeping tables.
const SchemaLockID int64 = 123456789

// LockSchema serializes concurrent table bootstrap inside tx. PostgreSQL can
// fail two racing CREATE TABLE IF NOT EXISTS statements with a unique
// violation on pg_type, so the transaction takes a transaction-scoped
// advisory lock that is released on commit or rollback. Other dialects
// need no guard and LockSchema is a no-op.
func LockSchema(ctx context.Context, tx Tx, dialect Dialect) error {
	if dialect.Name != Postgres.Name {
		return nil
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(?)", SchemaLockID); err != nil {
		return fmt.Errorf("taking schema advisory lock: %w", err)
	}

	return nil
}
