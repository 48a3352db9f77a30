package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a balance-changing event.
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindWithdraw    Kind = "withdraw"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
)

// Valid reports whether k is one of the known entry kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindTransferOut, KindTransferIn:
		return true
	}
	return false
}

// ErrMalformedEntry is returned when an entry does not carry exactly one
// positive credit or debit, or names an unknown kind.
var ErrMalformedEntry = errors.New("malformed ledger entry")

// Entry is an immutable record of one balance-changing event.
type Entry struct {
	ID               int64
	AccountNumber    int64
	Timestamp        time.Time
	Kind             Kind
	Credit           decimal.NullDecimal
	Debit            decimal.NullDecimal
	ResultingBalance decimal.Decimal
	// PairedEntry is the id of the other leg of a transfer.
	PairedEntry *int64
}

// Signed returns the credit as a positive amount or the debit as a negative one.
func (e Entry) Signed() decimal.Decimal {
	if e.Credit.Valid {
		return e.Credit.Decimal
	}
	return e.Debit.Decimal.Neg()
}

func (e Entry) check() error {
	if !e.Kind.Valid() || e.Credit.Valid == e.Debit.Valid {
		return ErrMalformedEntry
	}
	if !e.Signed().Abs().IsPositive() {
		return ErrMalformedEntry
	}
	return nil
}
