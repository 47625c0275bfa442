package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same repository code runs
// inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querierKey struct{}

// WithQuerier stores a transaction (or other Querier) in the context so
// downstream repository calls join the same consistency boundary.
func WithQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, querierKey{}, q)
}

// QuerierFromContext returns the context's transaction if one is present,
// otherwise the fallback (normally the pool).
func QuerierFromContext(ctx context.Context, fallback Querier) Querier {
	if q, ok := ctx.Value(querierKey{}).(Querier); ok {
		return q
	}
	return fallback
}

// TxRunner runs a function inside a transaction boundary. Satisfied by
// *DB; tests substitute a pass-through.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ TxRunner = (*DB)(nil)

// InTx runs fn inside a single transaction. The transaction is stored in
// the context handed to fn, so every repository call within joins it.
// A crash or error mid-operation leaves either the pre- or post-state,
// never a mix.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(WithQuerier(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
