package handler

import (
	"context"
	"net/http"
	"time"

	"salon/internal/middleware"
	"salon/internal/observability"

	"github.com/labstack/echo/v4"
)

// Pingerはストアの疎通確認（nilなら常にok）
type Pinger func(ctx context.Context) error

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// SystemHandlerは /healthz /metrics /csrf
type SystemHandler struct {
	ping         Pinger
	metrics      *observability.Metrics
	csrfTTL      time.Duration
	cookieSecure bool
}

func NewSystemHandler(ping Pinger, metrics *observability.Metrics, csrfTTL time.Duration, cookieSecure bool) *SystemHandler {
	return &SystemHandler{ping: ping, metrics: metrics, csrfTTL: csrfTTL, cookieSecure: cookieSecure}
}

func (h *SystemHandler) RegisterRoutes(e *echo.Echo, _ Middlewares) {
	e.GET("/healthz", h.health)
	e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	e.GET("/csrf", h.csrf)
}

func (h *SystemHandler) health(c echo.Context) error {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// GET /csrf。cookieとヘッダの両方で同じ値を返す
func (h *SystemHandler) csrf(c echo.Context) error {
	token, err := generateSecureToken(32)
	if err != nil {
		return writeError(c, err)
	}
	setCsrfCookie(c, token, h.csrfTTL, h.cookieSecure)
	c.Response().Header().Set(middleware.CSRFHeaderName, token)
	return c.JSON(http.StatusOK, csrfResponse{CSRFToken: token})
}
