package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
)

// changeStateScript performs the compare-and-set at the heart of ChangeState: only replace the
// value if it still matches what the caller believes it holds. Run as a single EVAL so the
// read-compare-write is atomic even with multiple worker processes sharing the same Redis.
const changeStateScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
	return 1
else
	return 0
end
`

// releaseScript deletes key iff its current value is one of the two holder-identifying values
// supplied by the caller (DOING or COMMITTING form of the same holder's value).
const releaseScript = `
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] or current == ARGV[2] then
	redis.call("DEL", KEYS[1])
	return 1
else
	return 0
end
`

// RedisLock is the production Locker backing, appropriate for a multi-process deployment where
// every worker shares one Redis instance as the lock namespace.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, value models.LockValue, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, value.String(), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "error acquiring lock")
	}
	return ok, nil
}

func (l *RedisLock) ChangeState(ctx context.Context, key string, from, to models.LockValue) error {
	result, err := l.client.Eval(ctx, changeStateScript, []string{key}, from.String(), to.String()).Int64()
	if err != nil {
		return errors.Wrap(err, "error executing lock change-state script")
	}
	if result == 0 {
		return gerror.NewErrLockTimeout("lock value changed before commit, TTL likely expired")
	}
	return nil
}

func (l *RedisLock) Release(ctx context.Context, key string, valueA, valueB models.LockValue) error {
	_, err := l.client.Eval(ctx, releaseScript, []string{key}, valueA.String(), valueB.String()).Int64()
	if err != nil {
		return errors.Wrap(err, "error executing lock release script")
	}
	return nil
}

func (l *RedisLock) Peek(ctx context.Context, key string) (*models.LockValue, error) {
	str, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading lock value")
	}
	value, err := models.ParseLockValue(str)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
