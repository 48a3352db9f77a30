package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Postgres opens one database transaction per unit.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres builds a backend over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Begin opens a READ COMMITTED transaction. Writers rely on row locks taken by
// the conditional UPDATE. Snapshot units run REPEATABLE READ READ ONLY so every
// statement sees the snapshot of the first one.
func (p *Postgres) Begin(ctx context.Context, opts ...Option) (Unit, error) {
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	if resolve(opts).Snapshot {
		txOpts = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	}
	tx, err := p.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	return &postgresUnit{
		tx:      tx,
		wallets: wallet.NewPostgresStore(tx),
		journal: ledger.NewPostgresJournal(tx),
	}, nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

type postgresUnit struct {
	tx      pgx.Tx
	wallets *wallet.PostgresStore
	journal *ledger.PostgresJournal
}

func (u *postgresUnit) Wallets() wallet.Store   { return u.wallets }
func (u *postgresUnit) Journal() ledger.Journal { return u.journal }

func (u *postgresUnit) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return ErrUnitClosed
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
			return wallet.ErrVersionConflict
		}
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

func (u *postgresUnit) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback unit: %w", err)
	}
	return nil
}
