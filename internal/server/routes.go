package server

import (
	"salon/internal/handler"

	"github.com/labstack/echo/v4"
)

// Handlersは登録するハンドラ一式。nilのものは登録しない
type Handlers struct {
	System       *handler.SystemHandler
	Auth         *handler.AuthHandler
	OAuth        *handler.OAuthHandler
	Recovery     *handler.RecoveryHandler
	Profile      *handler.ProfileHandler
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	AdminUser    *handler.AdminUserHandler
}

type routeRegistrar interface {
	RegisterRoutes(e *echo.Echo, mw handler.Middlewares)
}

func RegisterRoutes(e *echo.Echo, h Handlers, mw handler.Middlewares) {
	registrars := []routeRegistrar{}
	if h.System != nil {
		registrars = append(registrars, h.System)
	}
	if h.Auth != nil {
		registrars = append(registrars, h.Auth)
	}
	if h.OAuth != nil {
		registrars = append(registrars, h.OAuth)
	}
	if h.Recovery != nil {
		registrars = append(registrars, h.Recovery)
	}
	if h.Profile != nil {
		registrars = append(registrars, h.Profile)
	}
	if h.Product != nil {
		registrars = append(registrars, h.Product)
	}
	if h.AdminProduct != nil {
		registrars = append(registrars, h.AdminProduct)
	}
	if h.AdminUser != nil {
		registrars = append(registrars, h.AdminUser)
	}

	for _, r := range registrars {
		r.RegisterRoutes(e, mw)
	}
}
