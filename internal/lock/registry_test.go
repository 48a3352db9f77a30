package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	assert.Equal(t, []int64{1, 3, 9}, normalize([]int64{9, 1, 3, 9, 1}))
}

func TestRegistrySerializesSameAccount(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, 7)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, r.Held(), "slots must be dropped once nobody holds them")
}

func TestRegistryOppositeOrderDoesNotDeadlock(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, 1, 2)
			if assert.NoError(t, err) {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, 2, 1)
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Held())
}

func TestRegistryHonoursContext(t *testing.T) {
	r := NewRegistry()
	release, err := r.Acquire(context.Background(), 1, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(ctx, 0, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Zero(t, r.Held(), "a failed acquire must give back the locks it already took")

	again, err := r.Acquire(context.Background(), 0, 1, 2)
	require.NoError(t, err)
	again()
}
