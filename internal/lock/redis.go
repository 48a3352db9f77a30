package lock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix      = "lock:wallet:"
	lockTries      = 20
	lockRetryDelay = 100 * time.Millisecond
	unlockTimeout  = 2 * time.Second
)

// RedisLocker coordinates account locks across processes with redsync
// mutexes. ttl bounds how long a crashed holder can block an account.
type RedisLocker struct {
	rs     *redsync.Redsync
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker builds a distributed Locker on client.
func NewRedisLocker(client *goredislib.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, accounts ...int64) (Release, error) {
	keys := normalize(accounts)
	held := make([]*redsync.Mutex, 0, len(keys))

	for _, account := range keys {
		m := l.rs.NewMutex(
			keyPrefix+strconv.FormatInt(account, 10),
			redsync.WithExpiry(l.ttl),
			redsync.WithTries(lockTries),
			redsync.WithRetryDelay(lockRetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			l.release(held)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: account %d: %v", ErrNotAcquired, account, err)
		}
		held = append(held, m)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

func (l *RedisLocker) release(held []*redsync.Mutex) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	for i := len(held) - 1; i >= 0; i-- {
		if ok, err := held[i].UnlockContext(ctx); !ok || err != nil {
			l.logger.Warn("release account lock", zap.String("key", held[i].Name()), zap.Bool("unlock_ok", ok), zap.Error(err))
		}
	}
}
