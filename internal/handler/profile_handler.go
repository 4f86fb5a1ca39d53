package handler

import (
	"net/http"

	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ProfileHandler struct {
	uc *usecase.ProfileUsecase
}

func NewProfileHandler(uc *usecase.ProfileUsecase) *ProfileHandler {
	return &ProfileHandler{uc: uc}
}

func (h *ProfileHandler) RegisterRoutes(e *echo.Echo, mw Middlewares) {
	g := e.Group("/users/me", mw.Auth, mw.CSRF)

	g.GET("/profile", h.get)
	g.PUT("/profile", h.update)
	g.PUT("/password", h.changePassword)
}

func (h *ProfileHandler) get(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	out, err := h.uc.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProfileHandler) update(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	var req usecase.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// パスワード変更後は全セッションが切れるので再ログインが必要
func (h *ProfileHandler) changePassword(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	var req usecase.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.ChangePassword(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
