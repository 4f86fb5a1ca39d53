package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisLimiterは複数インスタンスで共有する固定ウィンドウ
type RedisLimiter struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, limit int, win time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, limit: limit, window: win}
}

// INCRとTTL付与を1回で行う。TTLのないキー（途中で落ちた等）にもここでTTLを付け直す
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := keyPrefix + key

	vals, err := incrScript.Run(ctx, l.redis, []string{k}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrUnavailable, vals)
	}

	ttl := l.window
	if vals[1] > 0 {
		ttl = time.Duration(vals[1]) * time.Millisecond
	}
	return result(vals[0], l.limit, ttl), nil
}

// NewRedisClientはREDIS_URLからクライアントを作る
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
