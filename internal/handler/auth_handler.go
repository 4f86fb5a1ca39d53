package handler

import (
	"net/http"
	"time"

	"salon/internal/middleware"
	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	uc           *usecase.AuthUsecase
	csrfTTL      time.Duration // csrf cookie の有効期限
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(uc *usecase.AuthUsecase, csrfTTL time.Duration, cookieSecure bool) *AuthHandler {
	return &AuthHandler{uc: uc, csrfTTL: csrfTTL, cookieSecure: cookieSecure}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo, mw Middlewares) {
	g := e.Group("/auth")

	g.POST("/register", h.register, mw.RateLimit)
	g.POST("/verify-otp", h.verifyOTP, mw.RateLimit)
	g.POST("/resend-otp", h.resendOTP, mw.RateLimit)
	g.POST("/check-email", h.checkEmail, mw.RateLimit)
	g.POST("/login", h.login, mw.RateLimit)

	g.POST("/logout", h.logout, mw.Auth, mw.CSRF)
	g.POST("/refresh", h.refresh, mw.Auth, mw.CSRF)
	g.GET("/me", h.me, mw.Auth)
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

type logoutRequest struct {
	All bool `json:"all"`
}

// POST /auth/register
func (h *AuthHandler) register(c echo.Context) error {
	var req usecase.AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AuthHandler) verifyOTP(c echo.Context) error {
	var req usecase.VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	out, err := h.uc.VerifyOTP(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) resendOTP(c echo.Context) error {
	var req usecase.ResendOTPRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	out, err := h.uc.ResendOTP(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) checkEmail(c echo.Context) error {
	var req checkEmailRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	out, err := h.uc.CheckEmail(c.Request().Context(), req.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// POST /auth/login。成功したらcsrf cookieも配る
func (h *AuthHandler) login(c echo.Context) error {
	var req usecase.AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	out, err := h.uc.Login(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}

	csrfToken, err := generateSecureToken(32)
	if err != nil {
		return writeError(c, err)
	}
	setCsrfCookie(c, csrfToken, h.csrfTTL, h.cookieSecure)

	return c.JSON(http.StatusOK, out)
}

// POST /auth/logout  {"all": true}で全端末
func (h *AuthHandler) logout(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req logoutRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return invalidBody(c)
		}
	}
	if c.QueryParam("all") == "true" {
		req.All = true
	}

	out, err := h.uc.Logout(c.Request().Context(), p, req.All)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) refresh(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.Refresh(c.Request().Context(), p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) me(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.Me(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
