package store

import (
	"context"
	"sync"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Memory is an in-process backend. Units read committed state under a shared
// lock and publish their staged writes under the exclusive lock at commit,
// after checking that no wallet they mutated has moved since they read it.
type Memory struct {
	mu      sync.RWMutex
	wallets *wallet.MemoryTable
	entries *ledger.MemoryTable
}

// NewMemory builds an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		wallets: wallet.NewMemoryTable(),
		entries: ledger.NewMemoryTable(),
	}
}

// Begin opens a unit. A snapshot unit holds the shared lock until it is
// closed, so no commit can land between its reads.
func (m *Memory) Begin(ctx context.Context, opts ...Option) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var reads sync.Locker = m.mu.RLocker()
	snapshot := resolve(opts).Snapshot
	if snapshot {
		m.mu.RLock()
		reads = held{}
	}
	return &memoryUnit{
		store:    m,
		wallets:  wallet.NewMemoryTx(m.wallets, reads),
		journal:  ledger.NewMemoryTx(m.entries, reads),
		snapshot: snapshot,
	}, nil
}

// held is the read guard of a snapshot unit, which already owns the shared lock.
type held struct{}

func (held) Lock()   {}
func (held) Unlock() {}

type memoryUnit struct {
	store    *Memory
	wallets  *wallet.MemoryTx
	journal  *ledger.MemoryTx
	snapshot bool
	closed   bool
}

func (u *memoryUnit) Wallets() wallet.Store   { return u.wallets }
func (u *memoryUnit) Journal() ledger.Journal { return u.journal }

func (u *memoryUnit) Commit(ctx context.Context) error {
	if u.closed {
		return ErrUnitClosed
	}
	u.closed = true

	if u.snapshot {
		defer u.store.mu.RUnlock()
		pending := u.wallets.Pending() || u.journal.Pending()
		u.discard()
		if pending {
			return ErrReadOnly
		}
		return ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		u.discard()
		return err
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	if err := u.wallets.Validate(); err != nil {
		u.discard()
		return err
	}
	u.wallets.Apply()
	u.journal.Apply()
	return nil
}

func (u *memoryUnit) Rollback(context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.discard()
	if u.snapshot {
		u.store.mu.RUnlock()
	}
	return nil
}

func (u *memoryUnit) discard() {
	u.wallets.Discard()
	u.journal.Discard()
}
