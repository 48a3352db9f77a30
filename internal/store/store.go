// Package store provides the atomic unit that binds wallet mutations and
// ledger appends together. A unit either commits every write or none.
package store

import (
	"context"
	"errors"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/wallet"
)

var (
	// ErrUnitClosed is returned when a unit is used after Commit or Rollback.
	ErrUnitClosed = errors.New("unit already closed")
	// ErrReadOnly is returned when a snapshot unit tries to commit writes.
	ErrReadOnly = errors.New("unit is read-only")
)

// Unit is one atomic unit of work. Rollback after Commit is a no-op, so callers
// can defer it unconditionally.
type Unit interface {
	Wallets() wallet.Store
	Journal() ledger.Journal
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens atomic units against a backend.
type Store interface {
	Begin(ctx context.Context, opts ...Option) (Unit, error)
}

// Options configure a unit.
type Options struct {
	// Snapshot makes every read of the unit observe the same committed state,
	// regardless of writers on other connections or processes. Snapshot units
	// are read-only.
	Snapshot bool
}

// Option sets one field of Options.
type Option func(*Options)

// Snapshot opens a read-only unit whose reads share one view.
func Snapshot() Option {
	return func(o *Options) { o.Snapshot = true }
}

func resolve(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
