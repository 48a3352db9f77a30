package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Version is an opaque token identifying one observed state of a wallet. It is
// regenerated on every successful mutation and carries no ordering.
type Version string

// NoVersion means the caller did not supply a version token.
const NoVersion Version = ""

// NewVersion returns a fresh, never reused version token.
func NewVersion() Version {
	return Version(uuid.NewString())
}

func (v Version) String() string {
	return string(v)
}

// MaxBalance is the first balance that no longer fits NUMERIC(18,2).
var MaxBalance = decimal.New(1, 16)

// Wallet holds the balance of one account together with its version token.
type Wallet struct {
	AccountNumber int64
	Balance       decimal.Decimal
	Version       Version
	UpdatedAt     time.Time
}

// Delta describes one balance mutation requested from the store.
type Delta struct {
	AccountNumber int64
	// Amount is added to the balance; negative for debits.
	Amount decimal.Decimal
	// Expected must equal the stored version when set.
	Expected Version
	// CheckFunds rejects the mutation when it would drive the balance below zero.
	CheckFunds bool
}
