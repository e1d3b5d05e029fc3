package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"crm-platform/pkg/logger"
)

var ErrLockTimeout = errors.New("pipeline: lock wait timed out")

// Locker serializes work on a key. The returned unlock func must be called once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func cardLockKey(pipelineID, contactID string) string {
	return "card:" + pipelineID + ":" + contactID
}

// KeyedMutex is a process-local Locker. Entries are dropped when unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyLock{}}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// RedisLocker is a Locker shared by every API process, backed by redsync.
// The TTL bounds how long a crashed holder blocks the key, and also how long
// Lock waits when ctx has no earlier deadline.
type RedisLocker struct {
	rs     *redsync.Redsync
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		prefix: "crm:lock:",
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	mutex := l.rs.NewMutex(k,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(int(l.ttl/l.retry)+1),
		redsync.WithRetryDelay(l.retry),
	)

	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	if err := mutex.LockContext(waitCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if _, err := mutex.UnlockContext(rctx); err != nil {
				logger.From(ctx).Warn("card lock release failed", "key", k, "err", err)
			}
		})
	}, nil
}
