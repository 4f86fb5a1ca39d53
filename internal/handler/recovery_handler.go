package handler

import (
	"net/http"

	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /recovery 配下（パスワード再設定）
type RecoveryHandler struct {
	uc *usecase.RecoveryUsecase
}

func NewRecoveryHandler(uc *usecase.RecoveryUsecase) *RecoveryHandler {
	return &RecoveryHandler{uc: uc}
}

// 全部レート制限あり
func (h *RecoveryHandler) RegisterRoutes(e *echo.Echo, mw Middlewares) {
	g := e.Group("/recovery", mw.RateLimit, mw.CSRF)

	g.POST("/question", h.question)
	g.POST("/answer", h.answer)
	g.POST("/request", h.request)
	g.POST("/validate", h.validate)
	g.POST("/reset", h.reset)
}

func (h *RecoveryHandler) question(c echo.Context) error {
	var req usecase.SecurityQuestionRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.GetSecurityQuestion(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RecoveryHandler) answer(c echo.Context) error {
	var req usecase.SecurityAnswerRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.AnswerSecurityQuestion(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RecoveryHandler) request(c echo.Context) error {
	var req usecase.PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.RequestPasswordReset(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RecoveryHandler) validate(c echo.Context) error {
	var req usecase.ValidateResetTokenRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.ValidateResetToken(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RecoveryHandler) reset(c echo.Context) error {
	var req usecase.ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	out, err := h.uc.ResetPassword(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
