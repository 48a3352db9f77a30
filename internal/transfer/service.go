// Package transfer coordinates deposits, withdrawals and fund transfers. Each
// operation validates its input, takes the account locks, and then composes
// wallet mutations with ledger appends inside one atomic unit.
package transfer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/lock"
	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/notification"
	"github.com/congo-pay/walletledger/internal/store"
	"github.com/congo-pay/walletledger/internal/wallet"
)

const (
	OpOpenWallet = "open_wallet"
	OpBalance    = "balance"
	OpHistory    = "history"
	OpStatement  = "statement"
	OpReconcile  = "reconcile"
	OpDeposit    = "deposit"
	OpWithdraw   = "withdraw"
	OpTransfer   = "transfer"
)

const amountScale = 2

// maxAmount is the first value that no longer fits NUMERIC(18,2).
var maxAmount = wallet.MaxBalance

// Service is the only component allowed to compose several mutations into one unit.
type Service struct {
	store    store.Store
	locker   lock.Locker
	notifier notification.Notifier
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// NewService constructs the orchestrator. notifier may be nil.
func NewService(st store.Store, locker lock.Locker, notifier notification.Notifier, recorder *metrics.Recorder, logger *zap.Logger) *Service {
	return &Service{store: st, locker: locker, notifier: notifier, metrics: recorder, logger: logger}
}

// MovementInput describes a deposit or withdrawal.
type MovementInput struct {
	AccountNumber int64
	Amount        decimal.Decimal
	// Version is the token last read through Balance, History or Statement.
	Version wallet.Version
}

// TransferInput describes a fund transfer. Version guards the source wallet.
type TransferInput struct {
	SourceAccount      int64
	DestinationAccount int64
	Amount             decimal.Decimal
	Version            wallet.Version
}

// Receipt is the outcome of a committed deposit or withdrawal.
type Receipt struct {
	Wallet wallet.Wallet
	Entry  ledger.Entry
}

// TransferResult is the outcome of a committed transfer. Only the source
// wallet is reported; the destination state belongs to another holder.
type TransferResult struct {
	Source      wallet.Wallet
	OutEntry    ledger.Entry
	InEntryID   int64
	CompletedAt time.Time
}

// Statement is a wallet together with its history, read as one snapshot.
type Statement struct {
	Wallet  wallet.Wallet
	Entries []ledger.Entry
}

// Reconciliation compares a wallet balance with its ledger.
type Reconciliation struct {
	AccountNumber int64
	Balance       decimal.Decimal
	// LedgerSum is the sum of credits minus the sum of debits.
	LedgerSum decimal.Decimal
	// LastResulting is the resulting balance of the newest entry, if any.
	LastResulting decimal.NullDecimal
	Entries       int
	Consistent    bool
}

// OpenWallet creates the wallet of a newly opened account with a zero balance.
func (s *Service) OpenWallet(ctx context.Context, accountNumber int64) (wallet.Wallet, error) {
	start := time.Now()
	var opened wallet.Wallet

	err := validAccount(OpOpenWallet, accountNumber)
	if err == nil {
		err = s.withinUnit(ctx, []int64{accountNumber}, func(u store.Unit) error {
			w, err := u.Wallets().Open(ctx, accountNumber)
			opened = w
			return err
		})
	}
	if err := s.finish(ctx, OpOpenWallet, accountNumber, start, err); err != nil {
		return wallet.Wallet{}, err
	}
	return opened, nil
}

// Balance returns the committed balance and the version token to pass back
// on the next mutation.
func (s *Service) Balance(ctx context.Context, accountNumber int64) (wallet.Wallet, error) {
	start := time.Now()
	var current wallet.Wallet

	err := validAccount(OpBalance, accountNumber)
	if err == nil {
		err = s.withinUnit(ctx, nil, func(u store.Unit) error {
			w, err := u.Wallets().Get(ctx, accountNumber)
			current = w
			return err
		})
	}
	if err := s.finish(ctx, OpBalance, accountNumber, start, err); err != nil {
		return wallet.Wallet{}, err
	}
	return current, nil
}

// History lists the ledger entries of an account, oldest first.
func (s *Service) History(ctx context.Context, accountNumber int64) ([]ledger.Entry, error) {
	start := time.Now()
	var entries []ledger.Entry

	err := validAccount(OpHistory, accountNumber)
	if err == nil {
		err = s.withinUnit(ctx, nil, func(u store.Unit) error {
			if _, err := u.Wallets().Get(ctx, accountNumber); err != nil {
				return err
			}
			list, err := u.Journal().History(ctx, accountNumber)
			entries = list
			return err
		}, store.Snapshot())
	}
	if err := s.finish(ctx, OpHistory, accountNumber, start, err); err != nil {
		return nil, err
	}
	return entries, nil
}

// Statement reads balance, version and history from one snapshot unit, so the
// newest entry always matches the reported balance even while other processes
// write to the account.
func (s *Service) Statement(ctx context.Context, accountNumber int64) (Statement, error) {
	start := time.Now()
	var st Statement

	err := validAccount(OpStatement, accountNumber)
	if err == nil {
		st, err = s.statement(ctx, accountNumber)
	}
	if err := s.finish(ctx, OpStatement, accountNumber, start, err); err != nil {
		return Statement{}, err
	}
	return st, nil
}

// Reconcile checks that the balance equals the ledger sum and the newest
// entry's resulting balance. It never repairs anything.
func (s *Service) Reconcile(ctx context.Context, accountNumber int64) (Reconciliation, error) {
	start := time.Now()
	var report Reconciliation

	err := validAccount(OpReconcile, accountNumber)
	if err == nil {
		var st Statement
		st, err = s.statement(ctx, accountNumber)
		if err == nil {
			report = reconcile(st)
		}
	}
	if err := s.finish(ctx, OpReconcile, accountNumber, start, err); err != nil {
		return Reconciliation{}, err
	}
	if !report.Consistent {
		s.logger.Error("ledger out of balance",
			zap.Int64("account", accountNumber),
			zap.String("balance", report.Balance.StringFixed(amountScale)),
			zap.String("ledger_sum", report.LedgerSum.StringFixed(amountScale)),
		)
	}
	return report, nil
}

// Deposit credits amount to the wallet at the given version.
func (s *Service) Deposit(ctx context.Context, in MovementInput) (Receipt, error) {
	start := time.Now()
	var receipt Receipt

	err := validMovement(OpDeposit, in)
	if err == nil {
		err = s.withinUnit(ctx, []int64{in.AccountNumber}, func(u store.Unit) error {
			w, err := u.Wallets().ApplyDelta(ctx, wallet.Delta{
				AccountNumber: in.AccountNumber,
				Amount:        in.Amount,
				Expected:      in.Version,
			})
			if err != nil {
				return err
			}
			entry, err := u.Journal().Append(ctx, ledger.Entry{
				AccountNumber:    in.AccountNumber,
				Kind:             ledger.KindDeposit,
				Credit:           decimal.NewNullDecimal(in.Amount),
				ResultingBalance: w.Balance,
			})
			receipt = Receipt{Wallet: w, Entry: entry}
			return err
		})
	}
	if err := s.finish(ctx, OpDeposit, in.AccountNumber, start, err, zap.String("amount", in.Amount.StringFixed(amountScale))); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Withdraw debits amount from the wallet at the given version. The balance may
// reach zero but never goes below it.
func (s *Service) Withdraw(ctx context.Context, in MovementInput) (Receipt, error) {
	start := time.Now()
	var receipt Receipt

	err := validMovement(OpWithdraw, in)
	if err == nil {
		err = s.withinUnit(ctx, []int64{in.AccountNumber}, func(u store.Unit) error {
			w, err := u.Wallets().ApplyDelta(ctx, wallet.Delta{
				AccountNumber: in.AccountNumber,
				Amount:        in.Amount.Neg(),
				Expected:      in.Version,
				CheckFunds:    true,
			})
			if err != nil {
				return err
			}
			entry, err := u.Journal().Append(ctx, ledger.Entry{
				AccountNumber:    in.AccountNumber,
				Kind:             ledger.KindWithdraw,
				Debit:            decimal.NewNullDecimal(in.Amount),
				ResultingBalance: w.Balance,
			})
			receipt = Receipt{Wallet: w, Entry: entry}
			return err
		})
	}
	if err := s.finish(ctx, OpWithdraw, in.AccountNumber, start, err, zap.String("amount", in.Amount.StringFixed(amountScale))); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Transfer moves amount from the source to the destination wallet. Only the
// source leg is checked against the caller's version; the caller never holds
// the destination's token. The destination credit is an additive update made
// under the destination's account lock, so concurrent deposits to it are
// serialized rather than lost.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	start := time.Now()
	m := newMachine()
	var result TransferResult

	err := validTransfer(in)
	if err == nil {
		err = s.withinUnit(ctx, []int64{in.SourceAccount, in.DestinationAccount}, func(u store.Unit) error {
			return s.moveFunds(ctx, u, m, in, &result)
		})
	}

	fields := []zap.Field{
		zap.Int64("destination", in.DestinationAccount),
		zap.String("amount", in.Amount.StringFixed(amountScale)),
	}
	if err != nil {
		_ = m.advance(Aborted)
		fields = append(fields, zap.String("phase", m.failedIn.String()))
	} else {
		_ = m.advance(Committed)
		result.CompletedAt = time.Now().UTC()
	}
	if err := s.finish(ctx, OpTransfer, in.SourceAccount, start, err, fields...); err != nil {
		return TransferResult{}, err
	}

	s.notify(ctx, in)
	return result, nil
}

func (s *Service) moveFunds(ctx context.Context, u store.Unit, m *machine, in TransferInput, result *TransferResult) error {
	if err := m.advance(DebitingSource); err != nil {
		return err
	}
	source, err := u.Wallets().ApplyDelta(ctx, wallet.Delta{
		AccountNumber: in.SourceAccount,
		Amount:        in.Amount.Neg(),
		Expected:      in.Version,
		CheckFunds:    true,
	})
	if err != nil {
		return err
	}

	if err := m.advance(CreditingDestination); err != nil {
		return err
	}
	destination, err := u.Wallets().ApplyDelta(ctx, wallet.Delta{
		AccountNumber: in.DestinationAccount,
		Amount:        in.Amount,
	})
	if err != nil {
		return err
	}

	// Both legs reference each other, so their ids are reserved first.
	outID, err := u.Journal().ReserveID(ctx)
	if err != nil {
		return err
	}
	inID, err := u.Journal().ReserveID(ctx)
	if err != nil {
		return err
	}

	out, err := u.Journal().Append(ctx, ledger.Entry{
		ID:               outID,
		AccountNumber:    in.SourceAccount,
		Kind:             ledger.KindTransferOut,
		Debit:            decimal.NewNullDecimal(in.Amount),
		ResultingBalance: source.Balance,
		PairedEntry:      &inID,
	})
	if err != nil {
		return err
	}
	if _, err := u.Journal().Append(ctx, ledger.Entry{
		ID:               inID,
		AccountNumber:    in.DestinationAccount,
		Kind:             ledger.KindTransferIn,
		Credit:           decimal.NewNullDecimal(in.Amount),
		ResultingBalance: destination.Balance,
		PairedEntry:      &outID,
	}); err != nil {
		return err
	}

	*result = TransferResult{Source: source, OutEntry: out, InEntryID: inID}
	return nil
}

func (s *Service) notify(ctx context.Context, in TransferInput) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: strconv.FormatInt(in.DestinationAccount, 10),
		Body:        fmt.Sprintf("You received %s from account %d", in.Amount.StringFixed(amountScale), in.SourceAccount),
	})
	if err != nil {
		s.logger.Warn("transfer notification failed", zap.Int64("destination", in.DestinationAccount), zap.Error(err))
	}
}

func (s *Service) statement(ctx context.Context, accountNumber int64) (Statement, error) {
	var st Statement
	err := s.withinUnit(ctx, []int64{accountNumber}, func(u store.Unit) error {
		w, err := u.Wallets().Get(ctx, accountNumber)
		if err != nil {
			return err
		}
		entries, err := u.Journal().History(ctx, accountNumber)
		if err != nil {
			return err
		}
		st = Statement{Wallet: w, Entries: entries}
		return nil
	}, store.Snapshot())
	return st, err
}

// withinUnit runs fn inside one atomic unit while holding the locks of
// accounts. The unit is rolled back on every exit path that did not commit,
// including an abandoned context.
func (s *Service) withinUnit(ctx context.Context, accounts []int64, fn func(store.Unit) error, opts ...store.Option) error {
	if len(accounts) > 0 {
		release, err := s.locker.Acquire(ctx, accounts...)
		if err != nil {
			return err
		}
		defer release()
	}

	u, err := s.store.Begin(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := u.Rollback(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("rollback unit", zap.Error(err))
		}
	}()

	if err := fn(u); err != nil {
		return err
	}
	return u.Commit(ctx)
}

// finish classifies err, records the outcome and logs it.
func (s *Service) finish(ctx context.Context, op string, account int64, start time.Time, err error, fields ...zap.Field) error {
	took := time.Since(start)
	fields = append(fields, zap.String("op", op), zap.Int64("account", account), zap.Duration("took", took))

	if err == nil {
		s.metrics.Observe(op, "committed", took)
		if mutates(op) {
			s.logger.Info("operation committed", fields...)
		} else {
			s.logger.Debug("operation completed", fields...)
		}
		return nil
	}

	failure := classify(op, account, err)
	s.metrics.Observe(op, string(failure.Kind), took)
	fields = append(fields, zap.String("kind", string(failure.Kind)))

	switch failure.Kind {
	case KindStorage:
		if ctx.Err() != nil {
			s.logger.Warn("operation abandoned", append(fields, zap.Error(err))...)
		} else {
			s.logger.Error("operation failed", append(fields, zap.Error(err))...)
		}
	case KindVersionConflict, KindInsufficientFunds, KindBalanceLimit:
		s.logger.Warn("operation aborted", fields...)
	default:
		s.logger.Info("operation rejected", fields...)
	}
	return failure
}

func mutates(op string) bool {
	switch op {
	case OpOpenWallet, OpDeposit, OpWithdraw, OpTransfer:
		return true
	}
	return false
}

func validAccount(op string, accountNumber int64) error {
	if accountNumber <= 0 {
		return invalid(op, accountNumber, "account number must be positive")
	}
	return nil
}

func validAmount(op string, account int64, amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return invalid(op, account, "amount must be positive")
	case !amount.Equal(amount.Round(amountScale)):
		return invalid(op, account, "amount has more than two decimal places")
	case amount.GreaterThanOrEqual(maxAmount):
		return invalid(op, account, "amount is too large")
	}
	return nil
}

func validMovement(op string, in MovementInput) error {
	if err := validAccount(op, in.AccountNumber); err != nil {
		return err
	}
	if err := validAmount(op, in.AccountNumber, in.Amount); err != nil {
		return err
	}
	if in.Version == wallet.NoVersion {
		return invalid(op, in.AccountNumber, "version is required")
	}
	return nil
}

func validTransfer(in TransferInput) error {
	if err := validAccount(OpTransfer, in.SourceAccount); err != nil {
		return err
	}
	if err := validAccount(OpTransfer, in.DestinationAccount); err != nil {
		return err
	}
	if in.SourceAccount == in.DestinationAccount {
		return invalid(OpTransfer, in.SourceAccount, "cannot transfer to the same account")
	}
	if err := validAmount(OpTransfer, in.SourceAccount, in.Amount); err != nil {
		return err
	}
	if in.Version == wallet.NoVersion {
		return invalid(OpTransfer, in.SourceAccount, "version is required")
	}
	return nil
}

func reconcile(st Statement) Reconciliation {
	r := Reconciliation{
		AccountNumber: st.Wallet.AccountNumber,
		Balance:       st.Wallet.Balance,
		LedgerSum:     decimal.Zero,
		Entries:       len(st.Entries),
	}
	for _, e := range st.Entries {
		r.LedgerSum = r.LedgerSum.Add(e.Signed())
	}
	if n := len(st.Entries); n > 0 {
		r.LastResulting = decimal.NewNullDecimal(st.Entries[n-1].ResultingBalance)
	}

	r.Consistent = r.Balance.Equal(r.LedgerSum)
	if r.LastResulting.Valid {
		r.Consistent = r.Consistent && r.LastResulting.Decimal.Equal(r.Balance)
	}
	return r
}
