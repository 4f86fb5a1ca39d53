package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"salon/internal/observability"
	"salon/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

// RateLimitはIP+ルート単位で回数を制限する。
// limiterが使えないときは通す（ログだけ残す）
func RateLimit(l ratelimit.Limiter, m *observability.Metrics, log *slog.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			route := c.Path()
			key := c.RealIP() + ":" + route

			res, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				log.Warn("rate limiter unavailable", "route", route, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				retry := int(math.Ceil(res.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				m.RateLimited(route)
				log.Warn("rate limited", "route", route, "ip", c.RealIP())
				return c.JSON(http.StatusTooManyRequests, errorJSON("TOO_MANY_REQUESTS", "too many requests, try again later"))
			}
			return next(c)
		}
	}
}
