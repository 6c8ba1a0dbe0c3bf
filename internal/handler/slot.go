package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
)

// SlotStore is the meal slot persistence used by SlotHandler.
type SlotStore interface {
	Create(ctx context.Context, s *model.MealSlot) error
	GetByID(ctx context.Context, id uint64) (*model.MealSlot, error)
	ListByDateRange(ctx context.Context, from, to time.Time, activeOnly bool) ([]model.MealSlot, error)
}

// maxListDays caps the ?days parameter of the slot listing.
const maxListDays = 7

// SlotHandler serves meal slot creation and browsing.
type SlotHandler struct {
	Slots SlotStore
	Loc   *time.Location
	Now   func() time.Time
	// OnChange runs after a slot is written, to drop cached listings.
	OnChange func(ctx context.Context) error
}

type createSlotReq struct {
	SlotName    string `json:"slot_name" validate:"required,min=1,max=100"`
	SlotDate    string `json:"slot_date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required,clock"`
	EndTime     string `json:"end_time" validate:"required,clock"`
	MaxCapacity int    `json:"max_capacity" validate:"required,gt=0"`
	IsActive    *bool  `json:"is_active"`
}

type windowResp struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type slotResp struct {
	SlotID             uint64              `json:"slot_id"`
	SlotName           string              `json:"slot_name"`
	SlotDate           string              `json:"slot_date"`
	StartTime          paywindow.TimeOfDay `json:"start_time"`
	EndTime            paywindow.TimeOfDay `json:"end_time"`
	MaxCapacity        int                 `json:"max_capacity"`
	CurrentOccupancy   int                 `json:"current_occupancy"`
	AvailableSeats     int                 `json:"available_seats"`
	IsActive           bool                `json:"is_active"`
	PaymentWindowStart paywindow.TimeOfDay `json:"payment_window_start"`
	PaymentWindowEnd   paywindow.TimeOfDay `json:"payment_window_end"`
	PaymentWindow      windowResp          `json:"payment_window"`
	CreatedAt          time.Time           `json:"created_at"`
}

func toSlotResp(s *model.MealSlot, loc *time.Location) slotResp {
	w := s.Window(loc)
	return slotResp{
		SlotID:             s.SlotID,
		SlotName:           s.SlotName,
		SlotDate:           s.SlotDate.Format(time.DateOnly),
		StartTime:          s.StartTime,
		EndTime:            s.EndTime,
		MaxCapacity:        s.MaxCapacity,
		CurrentOccupancy:   s.CurrentOccupancy,
		AvailableSeats:     s.AvailableSeats(),
		IsActive:           s.IsActive,
		PaymentWindowStart: s.PaymentWindowStart,
		PaymentWindowEnd:   s.PaymentWindowEnd,
		PaymentWindow:      windowResp{Start: w.Start, End: w.End},
		CreatedAt:          s.CreatedAt,
	}
}

func (h *SlotHandler) location() *time.Location {
	if h.Loc == nil {
		return time.UTC
	}
	return h.Loc
}

func (h *SlotHandler) today() time.Time {
	clock := time.Now
	if h.Now != nil {
		clock = h.Now
	}
	return clock().In(h.location())
}

// Create handles POST /api/meal-slots (STAFF).  The payment window is
// derived from start_time and stored with the slot.
func (h *SlotHandler) Create(c echo.Context) error {
	var req createSlotReq
	if valid, err := bindValid(c, &req); !valid {
		return err
	}
	start, err := paywindow.Parse(req.StartTime)
	if err != nil {
		return failErr(c, err)
	}
	end, err := paywindow.Parse(req.EndTime)
	if err != nil {
		return failErr(c, err)
	}
	if end <= start {
		return fail(c, http.StatusBadRequest, "validation_failed", "end_time must be after start_time")
	}
	date, err := time.ParseInLocation(time.DateOnly, req.SlotDate, time.UTC)
	if err != nil {
		return fail(c, http.StatusBadRequest, "validation_failed", "slot_date must be YYYY-MM-DD")
	}

	s := &model.MealSlot{
		SlotName:    strings.TrimSpace(req.SlotName),
		SlotDate:    date,
		StartTime:   start,
		EndTime:     end,
		MaxCapacity: req.MaxCapacity,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Slots.Create(ctx, s); err != nil {
		return failErr(c, err)
	}
	if h.OnChange != nil {
		if err := h.OnChange(ctx); err != nil {
			c.Logger().Warnf("slots: invalidate cache: %v", err)
		}
	}
	return ok(c, http.StatusCreated, "meal slot created", toSlotResp(s, h.location()))
}

// List handles GET /api/meal-slots?date=YYYY-MM-DD&days=N.  It returns the
// active slots of N days (default 1) starting at date (default today in
// the cafeteria location).
func (h *SlotHandler) List(c echo.Context) error {
	loc := h.location()
	day := h.today()
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			return fail(c, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		}
		day = d
	}
	days, valid := queryInt(c, "days", 1)
	if !valid || days < 1 || days > maxListDays {
		return fail(c, http.StatusBadRequest, "validation_failed", "days must be between 1 and 7")
	}
	from := now.With(day).BeginningOfDay()
	to := now.With(from.AddDate(0, 0, days-1)).EndOfDay()

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	slots, err := h.Slots.ListByDateRange(ctx, from, to, true)
	if err != nil {
		return failErr(c, err)
	}
	out := make([]slotResp, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResp(&slots[i], loc))
	}
	return ok(c, http.StatusOK, "meal slots", out)
}

// Get handles GET /api/meal-slots/:id.
func (h *SlotHandler) Get(c echo.Context) error {
	id, valid := idParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "bad_request", "invalid slot id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	s, err := h.Slots.GetByID(ctx, id)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "meal slot", toSlotResp(s, h.location()))
}
