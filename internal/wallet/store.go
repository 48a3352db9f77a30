package wallet

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the account has no wallet.
	ErrNotFound = errors.New("wallet not found")

	// ErrAlreadyExists indicates a wallet was already opened for the account.
	ErrAlreadyExists = errors.New("wallet already exists")

	// ErrVersionConflict indicates the stored version no longer matches the
	// version the caller observed. Nothing was changed.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInsufficientFunds indicates the mutation would drive the balance below
	// zero. Nothing was changed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceLimit indicates the mutation would push the balance to
	// MaxBalance or beyond. Nothing was changed.
	ErrBalanceLimit = errors.New("balance limit exceeded")
)

// Store owns wallet balances and version tokens. Every balance mutation goes
// through ApplyDelta, which evaluates the version and funds checks as part of
// the same atomic write.
//
// A Store is scoped to one atomic unit; obtain it from store.Unit.
type Store interface {
	// Open creates the wallet for an account with a zero balance.
	Open(ctx context.Context, accountNumber int64) (Wallet, error)
	// Get returns the current balance and version of the wallet.
	Get(ctx context.Context, accountNumber int64) (Wallet, error)
	// ApplyDelta mutates the balance and assigns a new version, returning the
	// updated wallet.
	ApplyDelta(ctx context.Context, d Delta) (Wallet, error)
}
