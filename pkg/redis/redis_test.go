package redis_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/redis"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := redis.NewClientFromRedis(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLocker_SingleHolder(t *testing.T) {
	client, mr := newTestClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	lock, err := locker.TryLock(ctx, "pipeline:run", time.Hour)
	require.NoError(t, err)
	assert.True(t, mr.Exists("aster:lock:pipeline:run"))

	_, err = locker.TryLock(ctx, "pipeline:run", time.Hour)
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	holder, err := locker.Holder(ctx, "pipeline:run")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(holder, ":"), "host:pid:nonce, got %q", holder)

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("aster:lock:pipeline:run"))
	assert.ErrorIs(t, lock.Unlock(ctx), redis.ErrLockNotHeld)

	holder, err = locker.Holder(ctx, "pipeline:run")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestLocker_WithLockReleasesOnError(t *testing.T) {
	client, mr := newTestClient(t)
	locker := redis.NewLocker(client, "")
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "run", time.Hour, func(ctx context.Context) error {
		assert.True(t, mr.Exists("aster:lock:run"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("aster:lock:run"))
}

func TestLocker_ExpiredLockCannotBeReleasedByOldHolder(t *testing.T) {
	client, mr := newTestClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	stale, err := locker.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	current, err := locker.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Extend(ctx, time.Hour), redis.ErrLockNotHeld)
	assert.ErrorIs(t, stale.Unlock(ctx), redis.ErrLockNotHeld)
	assert.True(t, mr.Exists("aster:lock:run"))

	require.NoError(t, current.Extend(ctx, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("aster:lock:run"))
}

func TestWindow_CountsPerKey(t *testing.T) {
	client, _ := newTestClient(t)
	window := redis.NewWindow(client, "", 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := window.Take(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d", i)
		assert.Equal(t, int64(2-i), decision.Remaining)
	}

	decision, err := window.Take(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryIn, 59*time.Minute)

	decision, err = window.Take(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestWindow_BlockOverridesCount(t *testing.T) {
	client, mr := newTestClient(t)
	window := redis.NewWindow(client, "", 100, time.Hour)
	ctx := context.Background()

	require.NoError(t, window.Block(ctx, "k1", 30*time.Second))

	decision, err := window.Take(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 30*time.Second, decision.RetryIn)

	mr.FastForward(31 * time.Second)
	decision, err = window.Take(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
