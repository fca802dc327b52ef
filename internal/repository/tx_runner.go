package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/coverstats/internal/extraction"
)

// TxRunner runs one day's flush (entry batch plus watermark) inside a
// single transaction, so a day is either fully recorded or not at all.
type TxRunner struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{
		pool: pool,
		opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite},
	}
}

// WithTx commits when fn returns nil and rolls back otherwise. The error
// from fn is returned unwrapped so callers can still match sentinels.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos extraction.TxRepositories) error) error {
	var fnErr error
	err := pgx.BeginTxFunc(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		fnErr = fn(txRepos{tx: tx})
		return fnErr
	})
	switch {
	case fnErr != nil:
		return fnErr
	case err != nil:
		return fmt.Errorf("failed to commit extraction transaction: %w", err)
	}
	return nil
}

// txRepos hands out repositories bound to the open transaction.
type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Entries() extraction.EntryRepositoryInterface {
	return NewEntryRepositoryWithTx(r.tx)
}

func (r txRepos) Watermarks() extraction.WatermarkRepositoryInterface {
	return NewWatermarkRepositoryWithTx(r.tx)
}
