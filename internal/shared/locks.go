package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained indicates another settlement holds the record lock.
var ErrLockNotObtained = fmt.Errorf("record is locked by another operation: %w", ErrConflict)

// Locker serialises critical sections keyed by record.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// TaskLockKey builds redis keys for per-task settlement critical sections.
func TaskLockKey(taskID string) string {
	return fmt.Sprintf("printhub:task:%s:lock", taskID)
}

// CreditLockKey builds redis keys for credit account critical sections.
func CreditLockKey(customerKey string) string {
	return fmt.Sprintf("printhub:credit:%s:lock", customerKey)
}

// RedisLocker implements Locker on top of redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker constructs a distributed locker. ttl bounds how long a crashed holder
// keeps the key; wait bounds how long Acquire retries before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: wait}
}

// Acquire obtains the lock, retrying linearly until wait elapses.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("shared: redis locker not initialised")
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	lock, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", key, ErrLockNotObtained)
		}
		return nil, fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = lock.Release(context.WithoutCancel(ctx))
		})
	}, nil
}

// LocalLocker is an in-process keyed mutex used by single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker constructs LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

// Acquire blocks until key is free or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]*localSlot)
	}
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, slot)
		return nil, fmt.Errorf("%s: %w", key, ErrLockNotObtained)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.drop(key, slot)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
