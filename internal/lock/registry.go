package lock

import (
	"context"
	"sync"
)

// Registry is an in-process Locker. Each account maps to a one-slot semaphore
// that exists only while some unit holds or waits for it.
type Registry struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewRegistry builds an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[int64]*slot)}
}

func (r *Registry) Acquire(ctx context.Context, accounts ...int64) (Release, error) {
	keys := normalize(accounts)
	held := make([]int64, 0, len(keys))

	for _, account := range keys {
		s := r.ref(account)
		select {
		case s.sem <- struct{}{}:
			held = append(held, account)
		case <-ctx.Done():
			r.unref(account)
			r.release(held)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(func() { r.release(held) }) }, nil
}

// Held reports how many accounts currently have a live slot.
func (r *Registry) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *Registry) ref(account int64) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[account]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		r.slots[account] = s
	}
	s.refs++
	return s
}

func (r *Registry) unref(account int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[account]
	s.refs--
	if s.refs == 0 {
		delete(r.slots, account)
	}
}

func (r *Registry) release(held []int64) {
	for i := len(held) - 1; i >= 0; i-- {
		r.mu.Lock()
		s := r.slots[held[i]]
		r.mu.Unlock()
		<-s.sem
		r.unref(held[i])
	}
}
