package wallet

import "github.com/shopspring/decimal"

// Guard evaluates a proposed mutation against the stored wallet state and
// returns the balance that would result from applying it.
//
// The version check is strict equality: any drift since the caller observed the
// wallet, including a rewrite of the same balance, is a conflict. The Postgres
// store encodes the same predicate in its conditional UPDATE and uses Guard to
// classify a row that did not match.
func Guard(current Wallet, d Delta) (decimal.Decimal, error) {
	if d.Expected != NoVersion && d.Expected != current.Version {
		return decimal.Decimal{}, ErrVersionConflict
	}

	next := current.Balance.Add(d.Amount)
	if d.CheckFunds && next.IsNegative() {
		return decimal.Decimal{}, ErrInsufficientFunds
	}
	if next.GreaterThanOrEqual(MaxBalance) {
		return decimal.Decimal{}, ErrBalanceLimit
	}
	return next, nil
}
