package lockpkg

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// KeyPrefix namespaces lock keys in redis.
const KeyPrefix = "lock:"

// Deletes the key only when it still holds our token, so an expired lock taken over
// by another request is never released by the previous owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by all instances through redis.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker returns RedisLocker using the given client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// Acquire takes the lock with SET NX and the given ttl.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock := Lock{Key: KeyPrefix + key, Token: uuid.NewString()}

	acquired, err := l.rdb.SetNX(ctx, lock.Key, lock.Token, ttl).Result()
	if err != nil {
		return Lock{}, err
	}

	if !acquired {
		return Lock{}, ErrNotAcquired
	}

	return lock, nil
}

// Release frees the lock if it is still owned by the caller.
func (l *RedisLocker) Release(ctx context.Context, lock Lock) error {
	return releaseScript.Run(ctx, l.rdb, []string{lock.Key}, lock.Token).Err()
}
