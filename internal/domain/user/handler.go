package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
	"github.com/Drewww17/m2-sa-luminarias/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts self-service routes on api and approval routes on
// admin. Registration must stay reachable before a profile exists.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.POST("/users/register", h.Register)
	api.GET("/users/me", h.Me)

	admin.GET("/doctors/pending", h.ListPendingDoctors)
	admin.POST("/doctors/:id/approve", h.ApproveDoctor)
	admin.POST("/doctors/:id/reject", h.RejectDoctor)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Register(ctx, auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx), req)
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExists):
		return echo.NewHTTPError(http.StatusConflict, "user already registered")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Me(c echo.Context) error {
	if p := ProfileFromContext(c); p != nil {
		return c.JSON(http.StatusOK, p)
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetProfile(ctx, auth.UserIDFromContext(ctx))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "profile not registered")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPendingDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPendingDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list doctors")
	}
	if items == nil {
		items = []*Profile{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ApproveDoctor(c echo.Context) error {
	return h.setApproval(c, true)
}

func (h *Handler) RejectDoctor(c echo.Context) error {
	return h.setApproval(c, false)
}

func (h *Handler) setApproval(c echo.Context, approve bool) error {
	ctx := c.Request().Context()
	p, err := h.svc.SetApproval(ctx, auth.UserIDFromContext(ctx), c.Param("id"), approve)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrNotDoctor):
		return echo.NewHTTPError(http.StatusBadRequest, "user is not a doctor")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update approval")
	}
	return c.JSON(http.StatusOK, p)
}
