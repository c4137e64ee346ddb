package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxConns = 5

// NewPool creates a pgx connection pool for the given database URL.
// It parses the connection string, sets a conservative max connection limit,
// and pings the database to verify connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	poolCfg.MaxConns = defaultMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return pool, nil
}

// PgxDB adapts a pgx pool to DB.
type PgxDB struct {
	pool *pgxpool.Pool
}

// NewPgx wraps an existing pool. Close closes the pool.
func NewPgx(pool *pgxpool.Pool) *PgxDB {
	return &PgxDB{pool: pool}
}

// Pool exposes the underlying pool.
func (p *PgxDB) Pool() *pgxpool.Pool { return p.pool }

// Exec implements Querier. Statements without arguments go over the simple
// protocol, so multi-statement SQL is accepted.
func (p *PgxDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, Postgres.bind(query, args), args...)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// Query implements Querier.
func (p *PgxDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return p.pool.Query(ctx, Postgres.bind(query, args), args...)
}

// Begin implements DB.
func (p *PgxDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &pgxTx{tx: tx}, nil
}

// Dialect implements DB.
func (p *PgxDB) Dialect() Dialect { return Postgres }

// Close implements DB.
func (p *PgxDB) Close() error {
	p.pool.Close()
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, Postgres.bind(query, args), args...)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (t *pgxTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.tx.Query(ctx, Postgres.bind(query, args), args...)
}

func (t *pgxTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback on a committed pgx transaction returns pgx.ErrTxClosed, which is
// swallowed so deferred rollbacks stay quiet.
func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}

	return nil
}
