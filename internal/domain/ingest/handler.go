package ingest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/healthflow/fhirsync/internal/platform/fhir"
)

type Handler struct {
	svc          *Service
	defaultCount int
	maxCount     int
}

func NewHandler(svc *Service, defaultCount, maxCount int) *Handler {
	return &Handler{svc: svc, defaultCount: defaultCount, maxCount: maxCount}
}

// RegisterRoutes mounts the sync routes behind gate (admission control) and
// the health route without it. The static /sync/bulk route wins over
// /sync/:subjectId.
func (h *Handler) RegisterRoutes(g *echo.Group, gate ...echo.MiddlewareFunc) {
	g.POST("/sync/bulk", h.SyncBulk, gate...)
	g.POST("/sync/:subjectId", h.SyncSubject, gate...)
	g.GET("/health", h.Health)
}

type subjectResponse struct {
	Status          string `json:"status"`
	SubjectID       string `json:"subjectId"`
	ResourcesSynced int    `json:"resourcesSynced"`
}

func (h *Handler) SyncSubject(c echo.Context) error {
	subjectID := c.Param("subjectId")
	if subjectID == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("subjectId is required"))
	}

	out, err := h.svc.SyncSubject(c.Request().Context(), subjectID)
	if err != nil {
		var f *SyncFailure
		if !errors.As(err, &f) {
			return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
		}
		status, outcome := failureOutcome(f)
		return c.JSON(status, outcome)
	}

	return c.JSON(http.StatusOK, subjectResponse{
		Status:          StatusSuccess,
		SubjectID:       out.SubjectID,
		ResourcesSynced: out.ResourcesSynced,
	})
}

func failureOutcome(f *SyncFailure) (int, *fhir.OperationOutcome) {
	msg := fmt.Sprintf("sync of subject %s failed: %v", f.SubjectID, f.Cause)
	switch f.Reason {
	case ReasonNotFound:
		return http.StatusNotFound, fhir.NotFoundOutcome("Patient", f.SubjectID)
	case ReasonTransport, ReasonMalformed:
		return http.StatusBadGateway, fhir.TransientOutcome(msg)
	case ReasonTimeout:
		return http.StatusGatewayTimeout, fhir.TimeoutOutcome(msg)
	case ReasonCancelled:
		return http.StatusServiceUnavailable, fhir.TransientOutcome(msg)
	default:
		return http.StatusInternalServerError, fhir.ExceptionOutcome(msg)
	}
}

// SyncBulk syncs up to ?count= subjects. Individual subject failures are
// reported in the body with 200; only a listing failure is an error.
func (h *Handler) SyncBulk(c echo.Context) error {
	count := h.defaultCount
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("count must be a positive integer"))
		}
		count = n
	}
	if h.maxCount > 0 && count > h.maxCount {
		return c.JSON(http.StatusBadRequest,
			fhir.InvalidOutcome(fmt.Sprintf("count must not exceed %d", h.maxCount)))
	}

	res, err := h.svc.SyncMany(c.Request().Context(), count)
	if errors.Is(err, ErrListing) {
		return c.JSON(http.StatusBadGateway, fhir.TransientOutcome(err.Error()))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "UP",
		"service": "fhirsync",
	})
}
