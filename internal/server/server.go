package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"salon/internal/handler"
	"salon/internal/middleware"
	"salon/internal/observability"
	"salon/internal/ratelimit"
	"salon/internal/security"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Optionsはサーバー全体で共有するもの
type Options struct {
	Log           *slog.Logger
	Metrics       *observability.Metrics
	Authenticator *security.Authenticator
	Limiter       ratelimit.Limiter
	FrontendURL   string // CORSの許可オリジン
	CSRFEnforce   bool   // prodではcsrf cookieなしの書き込みを拒否
}

type Server struct {
	echo *echo.Echo
	log  *slog.Logger
}

// Newはecho本体・共通middleware・全ルートを組み立てる
func New(h Handlers, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(opts.Log, opts.Metrics))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.Secure())
	if opts.FrontendURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     []string{opts.FrontendURL},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.CSRFHeaderName},
			ExposeHeaders:    []string{middleware.CSRFHeaderName, "Retry-After"},
			AllowCredentials: true,
		}))
	}

	mw := handler.Middlewares{
		Auth:      middleware.AuthJWT(opts.Authenticator, opts.Log),
		Admin:     middleware.AdminRoleGuard(),
		RateLimit: middleware.RateLimit(opts.Limiter, opts.Metrics, opts.Log),
		CSRF:      middleware.CSRF(opts.CSRFEnforce),
	}
	RegisterRoutes(e, h, mw)

	return &Server{echo: e, log: opts.Log}
}

// テストからServeHTTPするため
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Startはブロックする。Shutdownで止めたときはnil
func (s *Server) Start(addr string) error {
	s.log.Info("server starting", "addr", addr)
	s.echo.Server.ReadHeaderTimeout = 10 * time.Second
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
