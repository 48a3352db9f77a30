package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgNumericOutOfRange    = "22003"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// DBTX is the subset of pgx.Tx used by the Postgres store.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads and mutates wallets inside one database transaction.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore binds a wallet store to the transaction of an atomic unit.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open inserts a zero-balance wallet.
func (s *PostgresStore) Open(ctx context.Context, accountNumber int64) (Wallet, error) {
	const query = `INSERT INTO wallets (account_number, balance, version)
        VALUES ($1, 0, $2)
        RETURNING account_number, balance, version, updated_at`
	w, err := scanWallet(s.db.QueryRow(ctx, query, accountNumber, NewVersion().String()))
	if err != nil {
		return Wallet{}, translate(err)
	}
	return w, nil
}

// Get fetches the committed balance and version of a wallet.
func (s *PostgresStore) Get(ctx context.Context, accountNumber int64) (Wallet, error) {
	const query = `SELECT account_number, balance, version, updated_at
        FROM wallets WHERE account_number = $1`
	w, err := scanWallet(s.db.QueryRow(ctx, query, accountNumber))
	if err != nil {
		return Wallet{}, translate(err)
	}
	return w, nil
}

// ApplyDelta runs the version and funds checks inside the UPDATE itself so a
// concurrent writer cannot slip between check and write. If no row matched,
// the current row is re-read to report why.
func (s *PostgresStore) ApplyDelta(ctx context.Context, d Delta) (Wallet, error) {
	var expected any
	if d.Expected != NoVersion {
		parsed, err := uuid.Parse(d.Expected.String())
		if err != nil {
			// No stored version can match; the row still decides NotFound.
			if _, err := s.Get(ctx, d.AccountNumber); err != nil {
				return Wallet{}, err
			}
			return Wallet{}, ErrVersionConflict
		}
		expected = parsed.String()
	}

	const query = `UPDATE wallets
        SET balance = balance + $2, version = $3, updated_at = now()
        WHERE account_number = $1
          AND ($4::uuid IS NULL OR version = $4::uuid)
          AND (NOT $5 OR balance + $2 >= 0)
          AND balance + $2 < $6
        RETURNING account_number, balance, version, updated_at`
	w, err := scanWallet(s.db.QueryRow(ctx, query, d.AccountNumber, d.Amount, NewVersion().String(), expected, d.CheckFunds, MaxBalance))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, translate(err)
	}

	current, err := s.Get(ctx, d.AccountNumber)
	if err != nil {
		return Wallet{}, err
	}
	if _, err := Guard(current, d); err != nil {
		return Wallet{}, err
	}
	// The row moved between the UPDATE and the re-read.
	return Wallet{}, ErrVersionConflict
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		version   string
		updatedAt time.Time
	)
	if err := row.Scan(&w.AccountNumber, &w.Balance, &version, &updatedAt); err != nil {
		return Wallet{}, err
	}
	w.Version = Version(version)
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrAlreadyExists
		case pgCheckViolation:
			return ErrInsufficientFunds
		case pgNumericOutOfRange:
			return ErrBalanceLimit
		case pgSerializationFailure, pgDeadlockDetected:
			return ErrVersionConflict
		}
	}
	return fmt.Errorf("wallet store: %w", err)
}
