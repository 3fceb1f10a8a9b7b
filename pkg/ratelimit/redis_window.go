package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript implements AtomicWindowCheck on a sorted set whose
// members are request markers scored by their time in milliseconds.
//
// KEYS[1] bucket
// ARGV    now_ms, window_ms, limit, burst_window_ms, burst_limit, member
// returns {allowed, count, burst_count, oldest_ms, oldest_burst_ms}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local burst_window = tonumber(ARGV[4])
local burst_limit = tonumber(ARGV[5])
local member = ARGV[6]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local burst = 0
if burst_limit > 0 then
	burst = redis.call('ZCOUNT', key, '(' .. (now - burst_window), '+inf')
end

local allowed = 0
if count < limit and (burst_limit <= 0 or burst < burst_limit) then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	count = count + 1
	if burst_limit > 0 then
		burst = burst + 1
	end
	allowed = 1
end

local oldest = -1
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
	oldest = tonumber(first[2])
end

local oldest_burst = -1
if burst_limit > 0 then
	local fb = redis.call('ZRANGEBYSCORE', key, '(' .. (now - burst_window), '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
	if #fb > 0 then
		oldest_burst = tonumber(fb[2])
	end
end

return {allowed, count, burst, oldest, oldest_burst}
`)

// RedisWindow is the Redis implementation of AtomicWindowCheck.
type RedisWindow struct {
	client redis.Scripter
	prefix string
}

// NewRedisWindow creates a Redis-backed window. Bucket keys are prefixed
// with prefix.
func NewRedisWindow(client redis.Scripter, prefix string) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix}
}

// CheckAndRecord runs the sliding window script.
func (w *RedisWindow) CheckAndRecord(ctx context.Context, req WindowRequest) (WindowResult, error) {
	burstLimit, burstWindow := 0, int64(0)
	if req.hasBurst() {
		burstLimit, burstWindow = req.BurstLimit, req.BurstWindow.Milliseconds()
	}

	raw, err := slidingWindowScript.Run(ctx, w.client,
		[]string{w.prefix + req.Key},
		req.Now.UnixMilli(),
		req.Window.Milliseconds(),
		req.Limit,
		burstWindow,
		burstLimit,
		uuid.NewString(),
	).Slice()
	if err != nil {
		if ctx.Err() != nil {
			return WindowResult{}, ctx.Err()
		}
		return WindowResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	vals, err := int64s(raw, 5)
	if err != nil {
		return WindowResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return WindowResult{
		Allowed:     vals[0] == 1,
		Count:       int(vals[1]),
		BurstCount:  int(vals[2]),
		Oldest:      millisToTime(vals[3]),
		OldestBurst: millisToTime(vals[4]),
	}, nil
}

func int64s(raw []interface{}, n int) ([]int64, error) {
	if len(raw) != n {
		return nil, fmt.Errorf("unexpected script reply length %d", len(raw))
	}
	out := make([]int64, n)
	for i, v := range raw {
		iv, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script reply element %T", v)
		}
		out[i] = iv
	}
	return out, nil
}

func millisToTime(ms int64) time.Time {
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
