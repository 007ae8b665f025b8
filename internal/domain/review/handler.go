package review

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/pkg/pagination"
)

type Handler struct {
	svc *Service
	// decisionLimit throttles decision writes; nil disables it.
	decisionLimit echo.MiddlewareFunc
}

func NewHandler(svc *Service, decisionLimit echo.MiddlewareFunc) *Handler {
	return &Handler{svc: svc, decisionLimit: decisionLimit}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReviewer, auth.RoleAuditor))
	read.GET("/reviews", h.ListReviews)
	read.GET("/reviews/:batch_id", h.GetReview)

	write := api.Group("", auth.RequireRole(auth.RoleReviewer))
	if h.decisionLimit != nil {
		write.Use(h.decisionLimit)
	}
	write.POST("/reviews/:batch_id/decision", h.Decide)
}

type decisionRequest struct {
	Decision Status `json:"decision"`
	Version  int    `json:"version"`
}

func (h *Handler) ListReviews(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Decide(c echo.Context) error {
	id, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Version <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "version is required")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Decide(ctx, id, req.Decision, req.Version, auth.Actor(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "review record not found")
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, "review record was modified; reload and retry")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
