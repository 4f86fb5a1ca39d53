// Package ratelimit はIP+パス単位の固定ウィンドウ制限。
// インメモリ版とRedis版があり、どちらも同じLimiterとして注入する。
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Redisに繋がらないとき
var ErrUnavailable = errors.New("rate limiter unavailable")

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	// Allowはkeyのカウンタを1つ進めて、まだ許可できるかを返す
	Allow(ctx context.Context, key string) (Result, error)
}

func result(count int64, limit int, ttl time.Duration) Result {
	if count > int64(limit) {
		return Result{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: ttl}
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - int(count)}
}
