package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryTable holds committed wallets for the in-memory store. It does no
// locking of its own: the owning store serializes Validate/Apply against reads.
type MemoryTable struct {
	rows map[int64]Wallet
}

// NewMemoryTable builds an empty wallet table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{rows: make(map[int64]Wallet)}
}

// MemoryTx stages wallet writes for one atomic unit. Writes become visible to
// other units only when the owning store applies them at commit.
type MemoryTx struct {
	table   *MemoryTable
	reads   sync.Locker
	staged  map[int64]Wallet
	created map[int64]bool
	// base records the committed version each mutated wallet had when this unit
	// first touched it; Validate rejects the unit if any of them moved.
	base map[int64]Version
}

// NewMemoryTx opens a staging view over table. reads guards committed state
// while the view reads it.
func NewMemoryTx(table *MemoryTable, reads sync.Locker) *MemoryTx {
	return &MemoryTx{
		table:   table,
		reads:   reads,
		staged:  make(map[int64]Wallet),
		created: make(map[int64]bool),
		base:    make(map[int64]Version),
	}
}

func (t *MemoryTx) committed(accountNumber int64) (Wallet, bool) {
	t.reads.Lock()
	defer t.reads.Unlock()
	w, ok := t.table.rows[accountNumber]
	return w, ok
}

// Open stages a new zero-balance wallet.
func (t *MemoryTx) Open(ctx context.Context, accountNumber int64) (Wallet, error) {
	if err := ctx.Err(); err != nil {
		return Wallet{}, err
	}
	if _, ok := t.staged[accountNumber]; ok {
		return Wallet{}, ErrAlreadyExists
	}
	if _, ok := t.committed(accountNumber); ok {
		return Wallet{}, ErrAlreadyExists
	}

	w := Wallet{
		AccountNumber: accountNumber,
		Balance:       decimal.Zero,
		Version:       NewVersion(),
		UpdatedAt:     time.Now().UTC(),
	}
	t.staged[accountNumber] = w
	t.created[accountNumber] = true
	return w, nil
}

// Get returns the wallet as seen by this unit.
func (t *MemoryTx) Get(ctx context.Context, accountNumber int64) (Wallet, error) {
	if err := ctx.Err(); err != nil {
		return Wallet{}, err
	}
	if w, ok := t.staged[accountNumber]; ok {
		return w, nil
	}
	w, ok := t.committed(accountNumber)
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

// ApplyDelta checks the mutation with Guard and stages the result under a new version.
func (t *MemoryTx) ApplyDelta(ctx context.Context, d Delta) (Wallet, error) {
	current, err := t.Get(ctx, d.AccountNumber)
	if err != nil {
		return Wallet{}, err
	}

	next, err := Guard(current, d)
	if err != nil {
		return Wallet{}, err
	}
	// Mirrors the non-negative CHECK constraint of the Postgres schema.
	if next.IsNegative() {
		return Wallet{}, ErrInsufficientFunds
	}

	if _, seen := t.base[d.AccountNumber]; !seen && !t.created[d.AccountNumber] {
		t.base[d.AccountNumber] = current.Version
	}

	updated := Wallet{
		AccountNumber: d.AccountNumber,
		Balance:       next,
		Version:       NewVersion(),
		UpdatedAt:     time.Now().UTC(),
	}
	t.staged[d.AccountNumber] = updated
	return updated, nil
}

// Validate reports whether the staged writes can still be applied. The caller
// must hold the table's write lock.
func (t *MemoryTx) Validate() error {
	for accountNumber, version := range t.base {
		committed, ok := t.table.rows[accountNumber]
		if !ok || committed.Version != version {
			return ErrVersionConflict
		}
	}
	for accountNumber := range t.created {
		if _, ok := t.table.rows[accountNumber]; ok {
			return ErrAlreadyExists
		}
	}
	return nil
}

// Apply publishes the staged writes. The caller must hold the table's write
// lock and have called Validate.
func (t *MemoryTx) Apply() {
	for accountNumber, w := range t.staged {
		t.table.rows[accountNumber] = w
	}
	t.Discard()
}

// Pending reports whether the view has staged writes.
func (t *MemoryTx) Pending() bool {
	return len(t.staged) > 0
}

// Discard drops every staged write.
func (t *MemoryTx) Discard() {
	t.staged = make(map[int64]Wallet)
	t.created = make(map[int64]bool)
	t.base = make(map[int64]Version)
}
