// Package lock implements C7: a process-wide named lock keyed by user id, used to serialize
// rebuilds against concurrent reads via a two-phase DOING -> COMMITTING value.
package lock

import (
	"context"
	"time"

	"github.com/jumpserver/mappingtree/common/models"
)

// DefaultTTL is the default time-to-live applied when a lock is acquired, per §3/§5 (60s).
const DefaultTTL = 60 * time.Second

// Locker is the per-user named lock contract from §4.7. Implementations must make Acquire,
// ChangeState and Release atomic with respect to one another for a given key.
type Locker interface {
	// Acquire succeeds iff no other holder currently holds key, setting the row to value with
	// the given ttl. Returns false (not an error) if another holder already has it.
	Acquire(ctx context.Context, key string, value models.LockValue, ttl time.Duration) (bool, error)

	// ChangeState compare-and-sets key from `from` to `to`. Returns gerror.NewErrLockTimeout if the
	// current value does not match `from` - this means the TTL expired and another holder took over.
	ChangeState(ctx context.Context, key string, from, to models.LockValue) error

	// Release deletes key iff its current value matches either of the two supplied values.
	Release(ctx context.Context, key string, valueA, valueB models.LockValue) error

	// Peek returns the current value held at key, or nil if the key is not currently held.
	// Used by readers to distinguish a DOING holder (fail the read) from a COMMITTING holder
	// (wait-and-retry) without attempting to acquire the lock themselves.
	Peek(ctx context.Context, key string) (*models.LockValue, error)
}
