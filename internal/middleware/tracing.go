package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing names the server span opened by telemetry.HTTPHandler after the
// matched route, so /api/bookings/1 and /api/bookings/2 share a span name,
// and tags it with the request ID.  Without an active span it does nothing.
func Tracing() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			span := trace.SpanFromContext(c.Request().Context())
			if !span.IsRecording() {
				return next(c)
			}
			span.SetName(c.Request().Method + " " + c.Path())
			span.SetAttributes(attribute.String("http.route", c.Path()))

			err := next(c)
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				span.SetAttributes(attribute.String("http.request.id", id))
			}
			if err != nil {
				span.RecordError(err)
			}
			if c.Response().Status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(c.Response().Status))
			}
			return err
		}
	}
}
