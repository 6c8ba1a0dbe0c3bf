// Package handler contains the HTTP handlers of the API.  Every JSON
// response uses the same envelope: {"success", "message", "data", "code"}.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-prebooking/internal/middleware"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
}

func ok(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, envelope{Success: false, Message: message, Code: code})
}

// statusFor maps an engine error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "invalid_amount", "invalid_time_format", "exceeds_amount_due":
		return http.StatusBadRequest
	case "not_participant":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_state", "conflict", "already_settled", "payment_window_expired":
		return http.StatusConflict
	case "insufficient_funds", "insufficient_balance":
		return http.StatusUnprocessableEntity
	case "too_early":
		return http.StatusTooEarly
	}
	return http.StatusInternalServerError
}

// failErr writes err as an envelope.  Errors the engine does not know are
// logged and reported as a bare 500.
func failErr(c echo.Context, err error) error {
	code := settlement.Code(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return fail(c, status, "internal", "internal error")
	}
	return fail(c, status, code, err.Error())
}

// currentUser reads the caller set by middleware.JWTAuth.
func currentUser(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

func unauthorized(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

// idParam parses a positive integer path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter, falling back to def
// when it is absent and reporting false when it is malformed.
func queryInt(c echo.Context, name string, def int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
