package database

import (
	"context"
	"database/sql"
	"errors"
)

// SQLDB adapts a database/sql handle to DB. It serves the SQLite and MySQL
// drivers.
type SQLDB struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps db, which speaks the given dialect. Close closes db.
func NewSQL(db *sql.DB, dialect Dialect) *SQLDB {
	return &SQLDB{db: db, dialect: dialect}
}

// Exec implements Querier.
func (s *SQLDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execResult(s.db.ExecContext(ctx, s.dialect.bind(query, args), args...))
}

// Query implements Querier.
func (s *SQLDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query, args), args...)
	if err != nil {
		return nil, err
	}

	return &sqlRows{Rows: rows}, nil
}

// Begin implements DB.
func (s *SQLDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

// Dialect implements DB.
func (s *SQLDB) Dialect() Dialect { return s.dialect }

// Close implements DB.
func (s *SQLDB) Close() error { return s.db.Close() }

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execResult(t.tx.ExecContext(ctx, t.dialect.bind(query, args), args...))
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.bind(query, args), args...)
	if err != nil {
		return nil, err
	}

	return &sqlRows{Rows: rows}, nil
}

func (t *sqlTx) Commit(_ context.Context) error { return t.tx.Commit() }

func (t *sqlTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

// sqlRows drops the Close error; database/sql reports it through Err.
type sqlRows struct {
	*sql.Rows
}

func (r *sqlRows) Close() { _ = r.Rows.Close() }

func execResult(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // drivers without row counts still executed the statement
	}

	return n, nil
}
