package merge

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinicalmerge/internal/domain/convert"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/review"
	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

type Handler struct {
	svc     *Service
	reviews *review.Service
}

func NewHandler(svc *Service, reviews *review.Service) *Handler {
	return &Handler{svc: svc, reviews: reviews}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole(auth.RoleIntegrator))
	write.POST("/merges", h.CreateMerge)
}

// Response is the body of a merge call. Review is absent when the merge
// failed before the review record could be read.
type Response struct {
	Result *Result        `json:"result"`
	Review *review.Record `json:"review,omitempty"`
}

func (h *Handler) CreateMerge(c echo.Context) error {
	ctx := c.Request().Context()
	batch, err := extraction.Decode(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeStructure, err.Error()))
	}

	res, err := h.svc.Merge(ctx, batch)
	switch {
	case errors.Is(err, extraction.ErrMalformedBatch), errors.Is(err, convert.ErrNoConverter):
		return c.JSON(http.StatusUnprocessableEntity,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeStructure, err.Error()))
	case errors.Is(err, record.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrMergeFailed):
		c.Response().Header().Set("Retry-After", "5")
		return c.JSON(http.StatusServiceUnavailable, Response{Result: res})
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := Response{Result: res}
	if rv, err := h.reviews.Get(ctx, res.BatchID); err == nil {
		resp.Review = rv
	}
	return c.JSON(http.StatusOK, resp)
}
