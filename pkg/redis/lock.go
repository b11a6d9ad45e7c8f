package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

const releaseTimeout = 5 * time.Second

// compare-and-delete and compare-and-expire so a holder whose lock expired
// never touches the next holder's lock
var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) ~= ARGV[1] then
			return 0
		end
		return redis.call("del", KEYS[1])
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) ~= ARGV[1] then
			return 0
		end
		return redis.call("pexpire", KEYS[1], ARGV[2])
	`)
)

// Locker hands out single-holder locks stored as plain keys. The value names
// the holder as host:pid:nonce.
type Locker struct {
	client *Client
	prefix string
	holder string
}

func NewLocker(client *Client, prefix string) *Locker {
	if prefix == "" {
		prefix = KeyPrefix + "lock:"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Locker{
		client: client,
		prefix: prefix,
		holder: fmt.Sprintf("%s:%d", host, os.Getpid()),
	}
}

type Lock struct {
	locker *Locker
	key    string
	token  string
}

// TryLock takes name for ttl without waiting
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := l.prefix + name
	token := l.holder + ":" + uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to take lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).WithField("ttl", ttl.String()).Debugf("Took lock %s", key)
	return &Lock{locker: l, key: key, token: token}, nil
}

// Holder returns who holds name, or "" when it is free
func (l *Locker) Holder(ctx context.Context, name string) (string, error) {
	holder, err := l.client.rdb.Get(ctx, l.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}

// Extend resets the lock's ttl if it is still held
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, lock.locker.client.rdb, []string{lock.key}, lock.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (lock *Lock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, lock.locker.client.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}

	lock.locker.client.logger.WithContext(ctx).Debugf("Released lock %s", lock.key)
	return nil
}

// WithLock runs fn while holding name. The lock is released even when ctx
// has been cancelled.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := l.TryLock(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lock.Unlock(releaseCtx); err != nil {
			l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", lock.key)
		}
	}()

	return fn(ctx)
}
