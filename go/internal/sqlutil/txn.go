package sqlutil

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx, so queries
// can run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter begins transactions; *pgxpool.Pool implements it.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Run executes fn inside a pgx.Tx.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db TxStarter,
	newQueries func(pgx.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.Begin(ctx) // BEGIN
	if err != nil {
		return err
	}
	q := newQueries(tx)
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx) // ROLLBACK
		return err
	}
	return tx.Commit(ctx) // COMMIT
}
