package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/walletledger/internal/lock"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Kind classifies a failed operation for callers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindVersionConflict   Kind = "version_conflict"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindBalanceLimit      Kind = "balance_limit"
	KindStorage           Kind = "storage"
)

var (
	// ErrValidation marks malformed input rejected before any storage access.
	ErrValidation = errors.New("invalid request")
	// ErrStorage marks a backend failure unrelated to business rules. The
	// operation may be retried from scratch.
	ErrStorage = errors.New("storage unavailable")
)

// Error is returned by every failed Service operation. errors.Is matches it
// against the sentinel of its Kind.
type Error struct {
	Op      string
	Kind    Kind
	Account int64
	Detail  string
}

func (e *Error) Error() string {
	if e.Account != 0 {
		return fmt.Sprintf("%s account %d: %s", e.Op, e.Account, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return wallet.ErrNotFound
	case KindAlreadyExists:
		return wallet.ErrAlreadyExists
	case KindVersionConflict:
		return wallet.ErrVersionConflict
	case KindInsufficientFunds:
		return wallet.ErrInsufficientFunds
	case KindBalanceLimit:
		return wallet.ErrBalanceLimit
	default:
		return ErrStorage
	}
}

// KindOf reports the Kind of err, or KindStorage when err did not come from
// the Service.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func invalid(op string, account int64, detail string) *Error {
	return &Error{Op: op, Kind: KindValidation, Account: account, Detail: detail}
}

// classify turns a raw failure into an *Error. Backend detail is dropped; the
// caller logs it.
func classify(op string, account int64, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	kind := KindStorage
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, wallet.ErrAlreadyExists):
		kind = KindAlreadyExists
	case errors.Is(err, wallet.ErrVersionConflict):
		kind = KindVersionConflict
	case errors.Is(err, wallet.ErrInsufficientFunds):
		kind = KindInsufficientFunds
	case errors.Is(err, wallet.ErrBalanceLimit):
		kind = KindBalanceLimit
	}

	detail := ErrStorage.Error()
	switch {
	case kind != KindStorage:
		detail = (&Error{Kind: kind}).Unwrap().Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		detail = "operation abandoned"
	case errors.Is(err, lock.ErrNotAcquired):
		detail = "account busy"
	}
	return &Error{Op: op, Kind: kind, Account: account, Detail: detail}
}
