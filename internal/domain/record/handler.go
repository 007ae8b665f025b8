package record

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinicalmerge/internal/domain/clinicaldate"
	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/pkg/pagination"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleReviewer, auth.RoleIntegrator, auth.RoleAuditor))
	readGroup.GET("/patients/:id/record", h.GetRecord)
	readGroup.GET("/batches/:batch_id/conflicts", h.ListConflicts)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleIntegrator))
	writeGroup.PUT("/patients/:id", h.PutPatient)
}

// GetRecord returns the current view of a patient's record rendered as FHIR.
// ?code=system|code narrows to one coded concept; ?from= and ?to= return the
// encounter timeline instead.
func (h *Handler) GetRecord(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if _, err := h.store.GetPatient(ctx, id); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var resources []*Resource
	switch {
	case c.QueryParam("code") != "":
		system, code, ok := strings.Cut(c.QueryParam("code"), "|")
		if !ok || system == "" || code == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "code must be system|code")
		}
		resources, err = h.store.SearchCode(ctx, id, system, code)
	case c.QueryParam("from") != "" || c.QueryParam("to") != "":
		from, to, perr := timelineBounds(c.QueryParam("from"), c.QueryParam("to"))
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, perr.Error())
		}
		resources, err = h.store.Timeline(ctx, id, from, to)
	default:
		var rec *CumulativeRecord
		rec, err = h.store.Load(ctx, id)
		if err == nil {
			resources = rec.Current()
		}
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pg := pagination.FromContext(c)
	total := len(resources)
	page := pagination.Slice(resources, pg)
	out := make([]map[string]interface{}, 0, len(page))
	for _, r := range page {
		out = append(out, r.ToFHIR())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func timelineBounds(fromText, toText string) (time.Time, time.Time, error) {
	var from, to time.Time
	if fromText != "" {
		d, err := clinicaldate.Normalize(fromText, clinicaldate.LocaleUS)
		if err != nil {
			return from, to, errors.New("invalid from date")
		}
		from = d.Time()
	}
	if toText != "" {
		d, err := clinicaldate.Normalize(toText, clinicaldate.LocaleUS)
		if err != nil {
			return from, to, errors.New("invalid to date")
		}
		to = d.End()
	}
	return from, to, nil
}

func (h *Handler) PutPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.store.SavePatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListConflicts(c echo.Context) error {
	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch_id")
	}
	items, err := h.store.ListConflicts(c.Request().Context(), batchID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []ConflictEntry{}
	}
	return c.JSON(http.StatusOK, items)
}
