package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/platform/admission"
	"github.com/healthflow/fhirsync/internal/platform/fhir"
)

// ClientIdentifier resolves the identity a request is counted against.
type ClientIdentifier interface {
	Resolve(c echo.Context) string
}

// Admission gates a route through the admission controller. Rejected
// requests get 429 with Retry-After and never reach the handler.
func Admission(ctrl *admission.Controller, clients ClientIdentifier, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID := clients.Resolve(c)
			d := ctrl.Admit(clientID)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := d.RetryAfterSeconds()
				h.Set("Retry-After", strconv.Itoa(retry))
				rid, _ := c.Get("request_id").(string)
				logger.Warn().
					Str("request_id", rid).
					Str("client_id", clientID).
					Str("path", c.Request().URL.Path).
					Int("retry_after", retry).
					Msg("admission rejected")
				return c.JSON(http.StatusTooManyRequests, fhir.ThrottleOutcome(retry))
			}
			return next(c)
		}
	}
}
