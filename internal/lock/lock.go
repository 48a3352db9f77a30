// Package lock serializes atomic units that touch the same accounts.
package lock

import (
	"context"
	"errors"
	"sort"
)

// ErrNotAcquired is returned when an account lock could not be taken.
var ErrNotAcquired = errors.New("account lock not acquired")

// Release frees every lock taken by one Acquire call. It is safe to call once.
type Release func()

// Locker grants exclusive access to a set of accounts for the lifetime of an
// atomic unit. Implementations take the locks in ascending account order so
// two units over the same pair cannot deadlock.
type Locker interface {
	Acquire(ctx context.Context, accounts ...int64) (Release, error)
}

func normalize(accounts []int64) []int64 {
	out := make([]int64, 0, len(accounts))
	seen := make(map[int64]struct{}, len(accounts))
	for _, a := range accounts {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
