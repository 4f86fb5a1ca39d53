package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFはdouble submit（cookie csrf_token と header X-CSRF-Token が同じ値）を確認する。
// enforce=falseのときはcookieがまだ無いリクエストを通す（開発用）
func CSRF(enforce bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			cookie, err := c.Cookie(CSRFCookieName)
			if err != nil || cookie.Value == "" {
				if !enforce {
					return next(c)
				}
				return c.JSON(http.StatusForbidden, errorJSON("CSRF_INVALID", "invalid or missing CSRF token"))
			}

			header := c.Request().Header.Get(CSRFHeaderName)
			if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
				return c.JSON(http.StatusForbidden, errorJSON("CSRF_INVALID", "invalid or missing CSRF token"))
			}
			return next(c)
		}
	}
}
