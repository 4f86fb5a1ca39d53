package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"salon/internal/logging"
	"salon/internal/security"

	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey    = "user_id"   // int64
	CtxUserRoleKey  = "user_role" // string
	CtxPrincipalKey = "principal" // *security.Principal
)

// bearer認証。署名・失効・watermark・無操作タイムアウトはAuthenticatorで見る
func AuthJWT(authn *security.Authenticator, log *slog.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawToken, ok := bearerToken(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}

			p, err := authn.Authenticate(c.Request().Context(), rawToken)
			if err != nil {
				return authError(c, log, err)
			}

			//contextへ保存
			c.Set(CtxUserIDKey, p.UserID)
			c.Set(CtxUserRoleKey, string(p.Role))
			c.Set(CtxPrincipalKey, p)

			return next(c)
		}
	}
}

// Authorization: Bearer <token>
func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return "", false
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func authError(c echo.Context, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, security.ErrSessionInactive):
		return c.JSON(http.StatusUnauthorized, errorJSON("SESSION_EXPIRED", "session expired due to inactivity"))
	case errors.Is(err, security.ErrAccountDisabled):
		return c.JSON(http.StatusForbidden, errorJSON("ACCOUNT_DISABLED", "account is disabled"))
	case security.IsAuthFailure(err):
		return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
	}

	//ストアに繋がらないときは通さない
	logging.LogError(log, "authenticate failed", err)
	return c.JSON(http.StatusInternalServerError, errorJSON("INTERNAL_ERROR", "internal error"))
}

// AuthJWTが入れたPrincipal
func PrincipalFrom(c echo.Context) (*security.Principal, bool) {
	p, ok := c.Get(CtxPrincipalKey).(*security.Principal)
	return p, ok && p != nil
}

func UserIDFrom(c echo.Context) (int64, bool) {
	id, ok := c.Get(CtxUserIDKey).(int64)
	return id, ok && id > 0
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func errorJSON(code string, msg string) errorResponse {
	return errorResponse{Error: msg, Code: code}
}
