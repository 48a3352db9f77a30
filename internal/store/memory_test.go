package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/wallet"
)

func openFunded(t *testing.T, s Store, account int64, amount int64) wallet.Wallet {
	t.Helper()
	ctx := context.Background()

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	defer u.Rollback(ctx)

	_, err = u.Wallets().Open(ctx, account)
	require.NoError(t, err)
	w, err := u.Wallets().ApplyDelta(ctx, wallet.Delta{AccountNumber: account, Amount: decimal.NewFromInt(amount)})
	require.NoError(t, err)
	_, err = u.Journal().Append(ctx, ledger.Entry{
		AccountNumber:    account,
		Kind:             ledger.KindDeposit,
		Credit:           decimal.NewNullDecimal(decimal.NewFromInt(amount)),
		ResultingBalance: w.Balance,
	})
	require.NoError(t, err)
	require.NoError(t, u.Commit(ctx))
	return w
}

func TestMemoryCommitPublishesWalletAndEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	funded := openFunded(t, s, 1, 100)

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	defer u.Rollback(ctx)

	got, err := u.Wallets().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, funded.Version, got.Version)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	history, err := u.Journal().History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].ResultingBalance.Equal(got.Balance))
}

func TestMemoryRollbackLeavesNoEffect(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	openFunded(t, s, 1, 100)

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = u.Wallets().ApplyDelta(ctx, wallet.Delta{AccountNumber: 1, Amount: decimal.NewFromInt(-30), CheckFunds: true})
	require.NoError(t, err)
	_, err = u.Journal().Append(ctx, ledger.Entry{
		AccountNumber:    1,
		Kind:             ledger.KindWithdraw,
		Debit:            decimal.NewNullDecimal(decimal.NewFromInt(30)),
		ResultingBalance: decimal.NewFromInt(70),
	})
	require.NoError(t, err)
	require.NoError(t, u.Rollback(ctx))
	require.ErrorIs(t, u.Commit(ctx), ErrUnitClosed)

	check, err := s.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)
	w, err := check.Wallets().Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)))
	history, err := check.Journal().History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryStaleUnitFailsAtCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	openFunded(t, s, 1, 100)

	first, err := s.Begin(ctx)
	require.NoError(t, err)
	second, err := s.Begin(ctx)
	require.NoError(t, err)

	for _, u := range []Unit{first, second} {
		_, err := u.Wallets().ApplyDelta(ctx, wallet.Delta{AccountNumber: 1, Amount: decimal.NewFromInt(-60), CheckFunds: true})
		require.NoError(t, err)
	}

	require.NoError(t, first.Commit(ctx))
	require.ErrorIs(t, second.Commit(ctx), wallet.ErrVersionConflict)
	require.NoError(t, second.Rollback(ctx))

	check, _ := s.Begin(ctx)
	defer check.Rollback(ctx)
	w, err := check.Wallets().Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(40)))
}

func TestMemoryCommitHonoursCancelledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = u.Wallets().Open(ctx, 42)
	require.NoError(t, err)

	cancel()
	require.ErrorIs(t, u.Commit(ctx), context.Canceled)

	check, _ := s.Begin(context.Background())
	_, err = check.Wallets().Get(context.Background(), 42)
	require.ErrorIs(t, err, wallet.ErrNotFound)
}

func TestMemorySnapshotHoldsOffCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	openFunded(t, s, 1, 100)

	snap, err := s.Begin(ctx, Snapshot())
	require.NoError(t, err)
	before, err := snap.Wallets().Get(ctx, 1)
	require.NoError(t, err)

	writer, err := s.Begin(ctx)
	require.NoError(t, err)
	w, err := writer.Wallets().ApplyDelta(ctx, wallet.Delta{AccountNumber: 1, Amount: decimal.NewFromInt(50), Expected: before.Version})
	require.NoError(t, err)
	_, err = writer.Journal().Append(ctx, ledger.Entry{
		AccountNumber:    1,
		Kind:             ledger.KindDeposit,
		Credit:           decimal.NewNullDecimal(decimal.NewFromInt(50)),
		ResultingBalance: w.Balance,
	})
	require.NoError(t, err)

	committed := make(chan error, 1)
	go func() { committed <- writer.Commit(ctx) }()

	select {
	case err := <-committed:
		t.Fatalf("commit landed inside an open snapshot: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	history, err := snap.Journal().History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].ResultingBalance.Equal(before.Balance))
	require.NoError(t, snap.Commit(ctx))

	require.NoError(t, <-committed)
	after := openUnit(t, s)
	got, err := after.Wallets().Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(150)))
}

func TestMemorySnapshotRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	openFunded(t, s, 1, 100)

	snap, err := s.Begin(ctx, Snapshot())
	require.NoError(t, err)
	_, err = snap.Wallets().ApplyDelta(ctx, wallet.Delta{AccountNumber: 1, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.ErrorIs(t, snap.Commit(ctx), ErrReadOnly)
	require.NoError(t, snap.Rollback(ctx))

	got, err := openUnit(t, s).Wallets().Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func openUnit(t *testing.T, s Store) Unit {
	t.Helper()
	u, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { u.Rollback(context.Background()) })
	return u
}
