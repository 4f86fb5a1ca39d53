package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"salon/internal/observability"

	"github.com/labstack/echo/v4"
)

// RequestLoggerはアクセスログとレイテンシのヒストグラム。
// ルートはパターン（/products/:id）で記録する
func RequestLogger(log *slog.Logger, m *observability.Metrics) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				//echoのHTTPErrorなどはここでレスポンスにする
				c.Error(err)
			}

			elapsed := time.Since(start)
			req := c.Request()
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			m.ObserveRequest(req.Method, route, strconv.Itoa(status), elapsed.Seconds())

			attrs := []any{
				"method", req.Method,
				"route", route,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"ip", c.RealIP(),
			}
			if id, ok := UserIDFrom(c); ok {
				attrs = append(attrs, "user_id", id)
			}

			switch {
			case status >= 500:
				log.Error("request", attrs...)
			case status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		}
	}
}
