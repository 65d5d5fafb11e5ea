// Package lockpkg provides short lived named locks used to guard in-flight requests.
package lockpkg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired indicates that the lock is held by someone else.
var ErrNotAcquired = errors.New("lock is held by another request")

// Lock identifies an acquired lock.
type Lock struct {
	Key   string
	Token string
}

// Locker acquires and releases named locks that expire after ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	Release(ctx context.Context, lock Lock) error
}

type memEntry struct {
	token     string
	expiresAt time.Time
}

// MemLocker is an in-process Locker for single instance deployments and tests.
type MemLocker struct {
	mu    sync.Mutex
	locks map[string]memEntry
	now   func() time.Time
}

// NewMemLocker returns empty MemLocker.
func NewMemLocker() *MemLocker {
	return &MemLocker{
		locks: make(map[string]memEntry),
		now:   time.Now,
	}
}

// Acquire takes the lock if it is free or expired.
func (l *MemLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if e, ok := l.locks[key]; ok && now.Before(e.expiresAt) {
		return Lock{}, ErrNotAcquired
	}

	lock := Lock{Key: key, Token: uuid.NewString()}
	l.locks[key] = memEntry{token: lock.Token, expiresAt: now.Add(ttl)}

	return lock, nil
}

// Release frees the lock if it is still owned by the caller.
func (l *MemLocker) Release(_ context.Context, lock Lock) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.locks[lock.Key]; ok && e.token == lock.Token {
		delete(l.locks, lock.Key)
	}

	return nil
}
