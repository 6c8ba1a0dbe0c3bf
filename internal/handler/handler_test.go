package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cafeteria-prebooking/internal/middleware"
	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement/settlementtest"
)

const (
	bookingID = 1
	slotID    = 7
	primary   = 10
	member    = 11
	outsider  = 99
)

var slotDay = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time { return time.Date(2026, 10, 18, h, m, s, 0, time.UTC) }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// asUser stands in for JWTAuth: the X-Test-User header names the caller.
func asUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if v := c.Request().Header.Get("X-Test-User"); v != "" {
			id, _ := strconv.ParseUint(v, 10, 64)
			c.Set(middleware.ContextUserID, id)
		}
		return next(c)
	}
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.Use(asUser)
	return e
}

func call(e *echo.Echo, method, target string, user uint64, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(user, 10))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data), string(env.Data))
	}
	return env
}

// seedLedger stores a 12:00 lunch slot, a pending group booking of
// 500 rupees and three wallets.
func seedLedger() *settlementtest.Ledger {
	l := settlementtest.NewLedger()
	start := paywindow.MustParse("12:00")
	ws, we := paywindow.Compute(start)
	l.PutSlot(model.MealSlot{
		SlotID:             slotID,
		SlotName:           "Lunch",
		SlotDate:           slotDay,
		StartTime:          start,
		EndTime:            paywindow.MustParse("14:00"),
		MaxCapacity:        100,
		CurrentOccupancy:   2,
		IsActive:           true,
		PaymentWindowStart: ws,
		PaymentWindowEnd:   we,
	})
	l.PutBooking(model.Booking{
		BookingID:        bookingID,
		BookingReference: "BK-TEST0001",
		SlotID:           slotID,
		PrimaryUserID:    primary,
		IsGroupBooking:   true,
		GroupSize:        2,
		Status:           model.StatusPendingPayment,
		TotalAmount:      50000,
	})
	l.AddMember(bookingID, member)
	l.PutWallet(primary, 30000)
	l.PutWallet(member, 40000)
	l.PutWallet(outsider, 100000)
	return l
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		settlement.ErrInvalidAmount:        http.StatusBadRequest,
		settlement.ErrInvalidTimeFormat:    http.StatusBadRequest,
		settlement.ErrExceedsAmountDue:     http.StatusBadRequest,
		settlement.ErrNotParticipant:       http.StatusForbidden,
		settlement.ErrNotFound:             http.StatusNotFound,
		settlement.ErrInvalidState:         http.StatusConflict,
		settlement.ErrConflict:             http.StatusConflict,
		settlement.ErrAlreadySettled:       http.StatusConflict,
		settlement.ErrPaymentWindowExpired: http.StatusConflict,
		settlement.ErrInsufficientFunds:    http.StatusUnprocessableEntity,
		settlement.ErrInsufficientBalance:  http.StatusUnprocessableEntity,
		settlement.ErrTooEarly:             http.StatusTooEarly,
		assert.AnError:                     http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(settlement.Code(err)), err.Error())
	}
}

func TestFailErrHidesInternalErrors(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return failErr(c, assert.AnError) })
	rec := call(e, http.MethodGet, "/x", 0, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal error","code":"internal"}`, rec.Body.String())
}
