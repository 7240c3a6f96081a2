package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

// txFrom returns the transaction bound to ctx by RunTx, if any.
func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a read-committed transaction bound to the context it
// receives. A call made inside another RunTx joins the outer transaction.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunTxOpts(ctx, nil, fn)
}

func (s *Store) RunTxOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context) error,
) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return wrapDBErr("postgres.Store.RunTx: begin", err)
	}

	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr("postgres.Store.RunTx: commit", err)
	}

	return nil
}

// handle returns the transaction bound to ctx or the pool.
func (s *Store) handle(ctx context.Context) DB {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *Store) Orders() *OrderRepo    { return &OrderRepo{store: s} }
func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{store: s} }
func (s *Store) Players() *PlayerRepo  { return &PlayerRepo{store: s} }
func (s *Store) Rosters() *RosterRepo  { return &RosterRepo{store: s} }
