package handler

import (
	"net/http"
	"strconv"
	"time"

	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminUserHandler struct {
	uc *usecase.AdminUserUsecase
}

func NewAdminUserHandler(uc *usecase.AdminUserUsecase) *AdminUserHandler {
	return &AdminUserHandler{uc: uc}
}

func (h *AdminUserHandler) RegisterRoutes(e *echo.Echo, mw Middlewares) {
	// /admin 配下は全部「JWT必須 + ADMIN限定」
	admin := e.Group("/admin", mw.Auth, mw.Admin, mw.CSRF)

	admin.GET("/users", h.listUsers)
	admin.DELETE("/users/:id", h.deactivate)
	admin.POST("/users/:id/force-logout", h.forceLogout)
	admin.GET("/audit-logs", h.listAuditLogs)
}

func (h *AdminUserHandler) listUsers(c echo.Context) error {
	page, limit, err := pageParams(c, 20)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.ListUsers(c.Request().Context(), page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminUserHandler) deactivate(c echo.Context) error {
	targetID, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.DeactivateUser(c.Request().Context(), adminID, targetID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, usecase.SuccessResponse{Message: "user deactivated"})
}

func (h *AdminUserHandler) forceLogout(c echo.Context) error {
	targetID, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	res, err := h.uc.ForceLogout(c.Request().Context(), adminID, targetID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GET /admin/audit-logs?action=&resource_type=&resource_id=&actor_user_id=&from=&to=&page=&limit=
func (h *AdminUserHandler) listAuditLogs(c echo.Context) error {
	page, limit, err := pageParams(c, 50)
	if err != nil {
		return badRequest(c, err.Error())
	}

	in := usecase.ListAuditLogsInput{
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		Page:         page,
		Limit:        limit,
	}
	if in.ActorUserID, err = optionalInt64(c.QueryParam("actor_user_id")); err != nil {
		return badRequest(c, "invalid actor_user_id")
	}
	if in.ResourceID, err = optionalInt64(c.QueryParam("resource_id")); err != nil {
		return badRequest(c, "invalid resource_id")
	}
	if in.From, err = optionalTime(c.QueryParam("from")); err != nil {
		return badRequest(c, "from must be RFC3339")
	}
	if in.To, err = optionalTime(c.QueryParam("to")); err != nil {
		return badRequest(c, "to must be RFC3339")
	}

	out, err := h.uc.ListAuditLogs(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type paramError string

func (e paramError) Error() string { return string(e) }

func pageParams(c echo.Context, defLimit int) (int, int, error) {
	page, limit := 1, defLimit
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, paramError("invalid page")
		}
		page = p
	}
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, paramError("invalid limit")
		}
		limit = l
	}
	return page, limit, nil
}

func optionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
