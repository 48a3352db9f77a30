package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgCheckViolation = "23514"

// DBTX is the subset of pgx.Tx used by the Postgres journal.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresJournal appends entries to ledger_entries inside one transaction.
type PostgresJournal struct {
	db DBTX
}

// NewPostgresJournal binds a journal to the transaction of an atomic unit.
func NewPostgresJournal(db DBTX) *PostgresJournal {
	return &PostgresJournal{db: db}
}

func (j *PostgresJournal) ReserveID(ctx context.Context) (int64, error) {
	var id int64
	if err := j.db.QueryRow(ctx, `SELECT nextval(pg_get_serial_sequence('ledger_entries', 'id'))`).Scan(&id); err != nil {
		return 0, fmt.Errorf("reserve entry id: %w", err)
	}
	return id, nil
}

func (j *PostgresJournal) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := e.check(); err != nil {
		return Entry{}, err
	}

	const query = `INSERT INTO ledger_entries
        (id, account_number, kind, credit, debit, resulting_balance, paired_entry_reference)
        VALUES (COALESCE($1, nextval(pg_get_serial_sequence('ledger_entries', 'id'))), $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`

	var id *int64
	if e.ID != 0 {
		id = &e.ID
	}
	err := j.db.QueryRow(ctx, query, id, e.AccountNumber, string(e.Kind), e.Credit, e.Debit, e.ResultingBalance, e.PairedEntry).
		Scan(&e.ID, &e.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return Entry{}, ErrMalformedEntry
		}
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func (j *PostgresJournal) History(ctx context.Context, accountNumber int64) ([]Entry, error) {
	const query = `SELECT id, account_number, created_at, kind, credit, debit, resulting_balance, paired_entry_reference
        FROM ledger_entries
        WHERE account_number = $1
        ORDER BY id`

	rows, err := j.db.Query(ctx, query, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.AccountNumber, &e.Timestamp, &kind, &e.Credit, &e.Debit, &e.ResultingBalance, &e.PairedEntry); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
