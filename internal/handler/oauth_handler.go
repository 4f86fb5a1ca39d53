package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salon/internal/logging"
	"salon/internal/oauth"
	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// OAuthHandlerはGoogleへのリダイレクトとコールバック、交換コードの消費
type OAuthHandler struct {
	uc           *usecase.OAuthUsecase
	provider     oauth.Provider // nilならGoogleログインは無効
	frontendURL  string
	cookieSecure bool
	log          *slog.Logger
}

func NewOAuthHandler(uc *usecase.OAuthUsecase, provider oauth.Provider, frontendURL string, cookieSecure bool, log *slog.Logger) *OAuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OAuthHandler{
		uc:           uc,
		provider:     provider,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		cookieSecure: cookieSecure,
		log:          log,
	}
}

func (h *OAuthHandler) RegisterRoutes(e *echo.Echo, mw Middlewares) {
	e.GET("/auth/google", h.start)
	e.GET("/auth/google/callback", h.callback)
	e.POST("/auth/exchange", h.exchange, mw.RateLimit)
}

// GET /auth/google → Googleの同意画面へ
func (h *OAuthHandler) start(c echo.Context) error {
	if h.provider == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "google sign-in is not configured", Code: "NOT_FOUND"})
	}

	state, err := generateSecureToken(24)
	if err != nil {
		return writeError(c, err)
	}
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateTTL.Seconds()),
	})
	return c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state))
}

// GET /auth/google/callback。失敗はフロントのログイン画面に?error=で返す
func (h *OAuthHandler) callback(c echo.Context) error {
	if h.provider == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "google sign-in is not configured", Code: "NOT_FOUND"})
	}

	//stateは1回だけ
	c.SetCookie(&http.Cookie{Name: oauthStateCookie, Path: "/auth/google", MaxAge: -1})

	if e := c.QueryParam("error"); e != "" {
		h.log.Info("google sign-in cancelled", "reason", e)
		return h.failRedirect(c, "OAUTH_CANCELLED")
	}

	cookie, err := c.Cookie(oauthStateCookie)
	state := c.QueryParam("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return h.failRedirect(c, "OAUTH_STATE_MISMATCH")
	}

	code := c.QueryParam("code")
	if code == "" {
		return h.failRedirect(c, "OAUTH_FAILED")
	}

	id, err := h.provider.Exchange(c.Request().Context(), code)
	if err != nil {
		logging.LogError(h.log, "google exchange failed", err)
		return h.failRedirect(c, "OAUTH_FAILED")
	}

	redirect, err := h.uc.OAuthCallback(c.Request().Context(), id)
	if err != nil {
		reason := "OAUTH_FAILED"
		if he, ok := usecase.AsHTTPError(err); ok {
			reason = he.Code
		}
		return h.failRedirect(c, reason)
	}
	return c.Redirect(http.StatusFound, redirect)
}

func (h *OAuthHandler) failRedirect(c echo.Context, reason string) error {
	q := url.Values{}
	q.Set("error", reason)
	return c.Redirect(http.StatusFound, h.frontendURL+"/login?"+q.Encode())
}

// POST /auth/exchange {"code": "..."}
func (h *OAuthHandler) exchange(c echo.Context) error {
	var req usecase.ExchangeCodeRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	out, err := h.uc.ExchangeCode(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
