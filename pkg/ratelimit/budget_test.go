package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/credentials"
	"github.com/Ramsey-B/aster/pkg/fetcher"
	"github.com/Ramsey-B/aster/pkg/ratelimit"
	"github.com/Ramsey-B/aster/pkg/redis"
)

var _ fetcher.Quota = (*ratelimit.CredentialBudget)(nil)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newBudget(t *testing.T, limit int64) (*ratelimit.CredentialBudget, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), testLogger())
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.NewCredentialBudget(client, limit, time.Hour, testLogger()), mr
}

func TestCredentialBudget_AllowsUpToLimitPerCredential(t *testing.T) {
	budget, _ := newBudget(t, 2)
	ctx := context.Background()

	assert.True(t, budget.Allow(ctx, "k1"))
	assert.True(t, budget.Allow(ctx, "k1"))
	assert.False(t, budget.Allow(ctx, "k1"))
	assert.True(t, budget.Allow(ctx, "k2"), "budgets are independent per credential")
}

func TestCredentialBudget_PenalizeBlocksCredential(t *testing.T) {
	budget, mr := newBudget(t, 100)
	ctx := context.Background()

	budget.Penalize(ctx, "k1", "120")
	assert.False(t, budget.Allow(ctx, "k1"))
	assert.True(t, budget.Allow(ctx, "k2"))

	mr.FastForward(121 * time.Second)
	assert.True(t, budget.Allow(ctx, "k1"))
}

func TestCredentialBudget_PenalizeWithoutRetryAfterUsesDefault(t *testing.T) {
	budget, mr := newBudget(t, 100)
	ctx := context.Background()

	budget.Penalize(ctx, "k1", "")
	assert.Equal(t, ratelimit.DefaultPenalty, mr.TTL("aster:quota:"+ratelimit.KeyFor("k1")+":blocked"))
}

func TestCredentialBudget_FailsOpenWhenRedisIsDown(t *testing.T) {
	budget, mr := newBudget(t, 1)
	mr.Close()

	assert.True(t, budget.Allow(context.Background(), "k1"))
	assert.True(t, budget.Allow(context.Background(), "k1"))
}

func TestKeyForDoesNotLeakCredential(t *testing.T) {
	key := ratelimit.KeyFor(credentials.Credential("SECRET-API-KEY"))
	assert.Len(t, key, 12)
	assert.NotContains(t, key, "SECRET")
	assert.Equal(t, key, ratelimit.KeyFor("SECRET-API-KEY"))
}

func TestParseRetryAfter(t *testing.T) {
	d, err := ratelimit.ParseRetryAfter("30")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	_, err = ratelimit.ParseRetryAfter("soon")
	assert.Error(t, err)
}
