package ledger

import "context"

// Journal is the append-only record of wallet movements. A Journal is scoped to
// one atomic unit, alongside the wallet store it documents.
type Journal interface {
	// ReserveID allocates an entry id ahead of Append. Ids increase in allocation
	// order; ids of aborted units are never reused, so gaps are expected.
	ReserveID(ctx context.Context) (int64, error)
	// Append inserts e and returns it with its id and timestamp set. A zero ID
	// allocates a fresh one; otherwise the id must come from ReserveID.
	Append(ctx context.Context, e Entry) (Entry, error)
	// History lists every entry of the account, oldest first by id. Re-reading
	// unchanged state yields the same sequence.
	History(ctx context.Context, accountNumber int64) ([]Entry, error)
}
