package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] window zset, KEYS[2] block key
// ARGV now_ms, size_ms, limit, member
// returns {allowed, remaining, retry_ms}
var takeScript = redis.NewScript(`
	local blocked = redis.call("pttl", KEYS[2])
	if blocked > 0 then
		return {0, 0, blocked}
	end

	local now = tonumber(ARGV[1])
	local size = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call("zremrangebyscore", KEYS[1], "-inf", now - size)
	local used = redis.call("zcard", KEYS[1])
	if used >= limit then
		local retry = size
		local oldest = redis.call("zrange", KEYS[1], 0, 0, "WITHSCORES")
		if #oldest > 0 then
			retry = tonumber(oldest[2]) + size - now
		end
		return {0, 0, retry}
	end

	redis.call("zadd", KEYS[1], now, ARGV[4])
	redis.call("pexpire", KEYS[1], size)
	return {1, limit - used - 1, 0}
`)

// Decision is the outcome of Window.Take
type Decision struct {
	Allowed   bool
	Remaining int64
	// RetryIn is how long until a denied key has room again
	RetryIn time.Duration
}

// Window is a sliding-window counter per key, with an optional hard block
// that overrides the count
type Window struct {
	client *Client
	prefix string
	limit  int64
	size   time.Duration
	now    func() time.Time
}

func NewWindow(client *Client, prefix string, limit int64, size time.Duration) *Window {
	if prefix == "" {
		prefix = KeyPrefix + "window:"
	}
	return &Window{
		client: client,
		prefix: prefix,
		limit:  limit,
		size:   size,
		now:    time.Now,
	}
}

// Take records one request against key if the window has room
func (w *Window) Take(ctx context.Context, key string) (Decision, error) {
	reply, err := takeScript.Run(ctx, w.client.rdb,
		[]string{w.prefix + key, w.blockKey(key)},
		w.now().UnixMilli(), w.size.Milliseconds(), w.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to take from window %s: %w", key, err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("unexpected window reply %v", reply)
	}

	return Decision{
		Allowed:   reply[0] == 1,
		Remaining: reply[1],
		RetryIn:   time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// Block denies key for d regardless of its count
func (w *Window) Block(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return w.client.rdb.Set(ctx, w.blockKey(key), w.now().Add(d).UTC().Format(time.RFC3339), d).Err()
}

func (w *Window) blockKey(key string) string {
	return w.prefix + key + ":blocked"
}
