package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/pkg/pagination"
)

type Handler struct {
	logger *Logger
}

func NewHandler(logger *Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAuditor))
	read.GET("/audit", h.ListEntries)
	read.GET("/audit/verify", h.VerifyChain)
}

// ListEntries pages through the trail, optionally filtered by
// ?event_type= and ?batch_id=.
func (h *Handler) ListEntries(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{EventType: EventType(c.QueryParam("event_type")), BatchID: c.QueryParam("batch_id")}
	items, total, err := h.logger.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) VerifyChain(c echo.Context) error {
	rep, err := h.logger.Verify(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	status := http.StatusOK
	if !rep.Valid {
		status = http.StatusConflict
	}
	return c.JSON(status, rep)
}
