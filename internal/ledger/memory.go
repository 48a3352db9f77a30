package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryTable holds committed entries for the in-memory store. Reads and
// Apply are serialized by the owning store.
type MemoryTable struct {
	seq       atomic.Int64
	byAccount map[int64][]Entry
}

// NewMemoryTable builds an empty entry table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{byAccount: make(map[int64][]Entry)}
}

// MemoryTx stages appends for one atomic unit.
type MemoryTx struct {
	table  *MemoryTable
	reads  sync.Locker
	staged []Entry
}

// NewMemoryTx opens a staging journal over table. reads guards committed
// entries while they are listed.
func NewMemoryTx(table *MemoryTable, reads sync.Locker) *MemoryTx {
	return &MemoryTx{table: table, reads: reads}
}

func (t *MemoryTx) ReserveID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.table.seq.Add(1), nil
}

func (t *MemoryTx) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if err := e.check(); err != nil {
		return Entry{}, err
	}
	if e.ID == 0 {
		e.ID = t.table.seq.Add(1)
	}
	e.Timestamp = time.Now().UTC()
	t.staged = append(t.staged, e)
	return e, nil
}

// History merges committed entries with the ones staged by this unit.
func (t *MemoryTx) History(ctx context.Context, accountNumber int64) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.reads.Lock()
	committed := t.table.byAccount[accountNumber]
	out := make([]Entry, len(committed), len(committed)+len(t.staged))
	copy(out, committed)
	t.reads.Unlock()

	for _, e := range t.staged {
		if e.AccountNumber == accountNumber {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Apply publishes staged entries. The caller must hold the table's write lock.
func (t *MemoryTx) Apply() {
	touched := make(map[int64]struct{})
	for _, e := range t.staged {
		t.table.byAccount[e.AccountNumber] = append(t.table.byAccount[e.AccountNumber], e)
		touched[e.AccountNumber] = struct{}{}
	}
	for accountNumber := range touched {
		entries := t.table.byAccount[accountNumber]
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	}
	t.Discard()
}

// Pending reports whether the journal has staged appends.
func (t *MemoryTx) Pending() bool {
	return len(t.staged) > 0
}

// Discard drops staged entries. Reserved ids are not returned.
func (t *MemoryTx) Discard() {
	t.staged = nil
}
