package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when another holder owns the key.
var ErrLockNotAcquired = errors.New("cache: lock held by another process")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short lived Redis locks.
type Locker struct {
	client *redis.Client
}

// NewLocker builds a Locker. A nil client yields a no-op locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock is a held lock; Release is safe to call more than once.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes key for ttl or fails with ErrLockNotAcquired.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if l == nil || l.client == nil {
		return &Lock{key: key}, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release drops the lock if it is still owned by this holder.
func (k *Lock) Release(ctx context.Context) error {
	if k == nil || k.client == nil || k.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err()
	k.token = ""
	return err
}
