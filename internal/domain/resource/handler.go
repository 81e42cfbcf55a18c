package resource

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthflow/fhirsync/internal/platform/fhir"
	"github.com/healthflow/fhirsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/stats", h.Stats)
	g.GET("/resources", h.List)
	g.GET("/resources/:type/:id", h.Get)
}

// Stats returns stored resource counts keyed by resource type.
func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) Get(c echo.Context) error {
	typ, id := c.Param("type"), c.Param("id")
	r, err := h.svc.Get(c.Request().Context(), typ+"/"+id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(typ, id))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, r)
}

// List supports type, since (RFC 3339, exclusive) and _count/_offset.
func (h *Handler) List(c echo.Context) error {
	p, err := pagination.FromContext(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	f := ListFilter{ResourceType: c.QueryParam("type")}
	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("since must be an RFC 3339 timestamp"))
		}
		f.SyncedSince = since
	}

	items, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
	}
	if items == nil {
		items = []*ExternalResource{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p, c.Request().URL))
}
