package bundle

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthflow/fhirsync/internal/platform/fhir"
	"github.com/healthflow/fhirsync/pkg/pagination"
)

type Handler struct {
	archiver *Archiver
}

func NewHandler(archiver *Archiver) *Handler {
	return &Handler{archiver: archiver}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/bundles", h.List)
}

// List returns archived snapshots newest first, filtered by ?type=.
func (h *Handler) List(c echo.Context) error {
	p, err := pagination.FromContext(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	items, total, err := h.archiver.List(c.Request().Context(), c.QueryParam("type"), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
	}
	if items == nil {
		items = []*Snapshot{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p, c.Request().URL))
}
