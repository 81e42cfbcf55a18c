package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthflow/fhirsync/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. Handlers run to
// completion on the calling goroutine and are expected to honor the context;
// if the deadline passed and nothing was written, the response is a 504
// OperationOutcome. Paths under /ws are exempt.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || strings.HasPrefix(c.Request().URL.Path, "/ws") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout,
					fhir.TimeoutOutcome("Request processing exceeded the allowed time limit"))
			}
			return err
		}
	}
}
