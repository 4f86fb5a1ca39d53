package handler

import (
	"net/http"

	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
)

type createdResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// /admin/products
type AdminProductHandler struct {
	uc *usecase.ProductUsecase
}

func NewAdminProductHandler(uc *usecase.ProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

// 書き込み系は全部 認証 → ADMIN → CSRF の順
func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, mw Middlewares) {
	g := e.Group("/admin/products", mw.Auth, mw.Admin, mw.CSRF)

	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

func (h *AdminProductHandler) create(c echo.Context) error {
	actorID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	var in usecase.AdminProductInput
	if err := c.Bind(&in); err != nil {
		return invalidBody(c)
	}

	id, err := h.uc.AdminCreateProduct(c.Request().Context(), actorID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, createdResponse{ID: id, Message: "created"})
}

func (h *AdminProductHandler) update(c echo.Context) error {
	actorID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	productID, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var in usecase.AdminProductInput
	if err := c.Bind(&in); err != nil {
		return invalidBody(c)
	}

	if err := h.uc.AdminUpdateProduct(c.Request().Context(), actorID, productID, in); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, usecase.SuccessResponse{Message: "updated"})
}

// 論理削除
func (h *AdminProductHandler) remove(c echo.Context) error {
	actorID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	productID, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	if err := h.uc.AdminDeleteProduct(c.Request().Context(), actorID, productID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, usecase.SuccessResponse{Message: "deleted"})
}
