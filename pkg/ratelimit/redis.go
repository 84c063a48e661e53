package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript performs the two-window admission check atomically on the
// Redis side. Each window is a sorted set of request timestamps keyed by
// user; expired members are pruned, both windows are counted, and the
// request is recorded only if it fits in both.
//
// Returns {status, minute_count, hour_count, retry_after, limit_type} where
// status is 0 for admitted, -1 for a minute-window denial and -2 for an
// hour-window denial. Counts include the admitted request.
var checkScript = redis.NewScript(`
local minute_key = KEYS[1]
local hour_key = KEYS[2]
local now = tonumber(ARGV[1])
local minute_limit = tonumber(ARGV[2])
local hour_limit = tonumber(ARGV[3])
local minute_window = 60
local hour_window = 3600

redis.call('ZREMRANGEBYSCORE', minute_key, 0, now - minute_window)
redis.call('ZREMRANGEBYSCORE', hour_key, 0, now - hour_window)

local minute_count = redis.call('ZCARD', minute_key)
local hour_count = redis.call('ZCARD', hour_key)

if minute_count >= minute_limit then
    local oldest = redis.call('ZRANGE', minute_key, 0, 0, 'WITHSCORES')
    local retry_after = 1
    if #oldest >= 2 then
        retry_after = math.max(1, math.ceil(tonumber(oldest[2]) + minute_window - now))
    end
    return {-1, minute_count, hour_count, retry_after, 'minute'}
end

if hour_count >= hour_limit then
    local oldest = redis.call('ZRANGE', hour_key, 0, 0, 'WITHSCORES')
    local retry_after = 1
    if #oldest >= 2 then
        retry_after = math.max(1, math.ceil(tonumber(oldest[2]) + hour_window - now))
    end
    return {-2, minute_count, hour_count, retry_after, 'hour'}
end

local member = tostring(now + math.random() / 1000000)
redis.call('ZADD', minute_key, now, member)
redis.call('ZADD', hour_key, now, member)
redis.call('EXPIRE', minute_key, minute_window * 2)
redis.call('EXPIRE', hour_key, hour_window * 2)

return {0, minute_count + 1, hour_count + 1, 0, ''}
`)

// RedisLimiter is a Limiter backed by Redis sorted sets. State is shared
// across gateway replicas and the admission check runs as a single Lua
// script, so concurrent replicas cannot over-admit.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter builds a limiter for Redis at the given URL. Callers use
// Available to verify connectivity.
func NewRedisLimiter(url string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisLimiter{client: redis.NewClient(opts)}, nil
}

func minuteKey(userID string) string { return "ratelimit:minute:" + userID }
func hourKey(userID string) string   { return "ratelimit:hour:" + userID }

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, userID string, limitMinute, limitHour int) (*Info, error) {
	start := time.Now()

	res, err := checkScript.Run(ctx, l.client,
		[]string{minuteKey(userID), hourKey(userID)},
		float64(time.Now().UnixMicro())/1e6, limitMinute, limitHour,
	).Slice()
	observeCheckDuration("redis", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("run ratelimit script: %w", err)
	}
	if len(res) != 5 {
		return nil, fmt.Errorf("unexpected ratelimit script reply: %v", res)
	}

	status := toInt(res[0])
	info := &Info{
		LimitMinute:        limitMinute,
		LimitHour:          limitHour,
		RequestsLastMinute: toInt(res[1]),
		RequestsLastHour:   toInt(res[2]),
	}

	if status == 0 {
		recordAllowed("redis")
		return info, nil
	}

	limitType, _ := res[4].(string)
	limit := limitMinute
	if limitType == LimitTypeHour {
		limit = limitHour
	}
	recordDenied("redis", limitType)
	return info, &LimitExceededError{
		LimitType:  limitType,
		Limit:      limit,
		RetryAfter: toInt(res[3]),
	}
}

// Usage implements Limiter. Counts are read with a pipeline after pruning
// expired members, and the admission state is not modified.
func (l *RedisLimiter) Usage(ctx context.Context, userID string) (*Usage, error) {
	now := float64(time.Now().UnixMicro()) / 1e6

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, minuteKey(userID), "0", fmt.Sprintf("%f", now-MinuteWindow.Seconds()))
	pipe.ZRemRangeByScore(ctx, hourKey(userID), "0", fmt.Sprintf("%f", now-HourWindow.Seconds()))
	minuteCount := pipe.ZCard(ctx, minuteKey(userID))
	hourCount := pipe.ZCard(ctx, hourKey(userID))

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read ratelimit usage: %w", err)
	}

	return &Usage{
		RequestsLastMinute: int(minuteCount.Val()),
		RequestsLastHour:   int(hourCount.Val()),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Backend:            l.Backend(),
	}, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.client.Del(ctx, minuteKey(userID), hourKey(userID)).Err(); err != nil {
		return fmt.Errorf("reset ratelimit keys: %w", err)
	}
	return nil
}

// Available implements Limiter with a bounded ping.
func (l *RedisLimiter) Available(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.client.Ping(pingCtx).Err() == nil
}

// Backend implements Limiter.
func (l *RedisLimiter) Backend() string { return "redis" }

// Close implements Limiter.
func (l *RedisLimiter) Close() error { return l.client.Close() }

// toInt handles the integer shapes go-redis can return from EVAL replies.
func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case string:
		var i int
		_, _ = fmt.Sscanf(n, "%d", &i)
		return i
	default:
		return 0
	}
}
