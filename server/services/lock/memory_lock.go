package lock

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
)

type memoryLockEntry struct {
	value   models.LockValue
	expires time.Time
}

// MemoryLock is a single-process Locker, suitable for tests and single-node deployments where a
// shared Redis instance is unavailable. It takes a clock.Clock so lock TTL expiry can be driven
// deterministically in tests instead of depending on wall-clock sleeps.
type MemoryLock struct {
	clock clock.Clock
	mu    sync.Mutex
	rows  map[string]memoryLockEntry
}

func NewMemoryLock(clk clock.Clock) *MemoryLock {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryLock{clock: clk, rows: make(map[string]memoryLockEntry)}
}

func (l *MemoryLock) Acquire(_ context.Context, key string, value models.LockValue, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if entry, ok := l.rows[key]; ok && entry.expires.After(now) {
		return false, nil
	}
	l.rows[key] = memoryLockEntry{value: value, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLock) ChangeState(_ context.Context, key string, from, to models.LockValue) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.rows[key]
	if !ok || !entry.expires.After(now) || entry.value != from {
		return gerror.NewErrLockTimeout("lock value changed before commit, TTL likely expired")
	}
	entry.value = to
	l.rows[key] = entry
	return nil
}

func (l *MemoryLock) Release(_ context.Context, key string, valueA, valueB models.LockValue) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.rows[key]
	if !ok {
		return nil
	}
	if entry.value == valueA || entry.value == valueB {
		delete(l.rows, key)
	}
	return nil
}

func (l *MemoryLock) Peek(_ context.Context, key string) (*models.LockValue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.rows[key]
	if !ok || !entry.expires.After(now) {
		return nil, nil
	}
	value := entry.value
	return &value, nil
}
