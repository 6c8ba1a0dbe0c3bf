package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// BookingLister lists the bookings a user takes part in.
type BookingLister interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// SlotReader fetches one slot.  settlement.Ledger implementations satisfy
// it.
type SlotReader interface {
	Slot(ctx context.Context, id uint64) (*model.MealSlot, error)
}

// BookingHandler serves the caller's bookings and their payment state.
type BookingHandler struct {
	Engine   *settlement.Engine
	Bookings BookingLister
	Slots    SlotReader
}

type bookingResp struct {
	BookingID        uint64              `json:"booking_id"`
	BookingReference string              `json:"booking_reference"`
	SlotID           uint64              `json:"slot_id"`
	PrimaryUserID    uint64              `json:"primary_user_id"`
	IsGroupBooking   bool                `json:"is_group_booking"`
	GroupSize        int                 `json:"group_size"`
	Status           model.BookingStatus `json:"booking_status"`
	StatusLabel      string              `json:"status_label"`
	TotalAmount      model.Money         `json:"total_amount"`
	WalletBalance    model.Money         `json:"wallet_balance"`
	RemainingDue     model.Money         `json:"remaining_due"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toBookingResp(b *model.Booking) bookingResp {
	return bookingResp{
		BookingID:        b.BookingID,
		BookingReference: b.BookingReference,
		SlotID:           b.SlotID,
		PrimaryUserID:    b.PrimaryUserID,
		IsGroupBooking:   b.IsGroupBooking,
		GroupSize:        b.GroupSize,
		Status:           b.Status,
		StatusLabel:      b.Status.Label(),
		TotalAmount:      b.TotalAmount,
		WalletBalance:    b.WalletBalance,
		RemainingDue:     b.RemainingDue(),
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

type paymentStateResp struct {
	BookingID     uint64              `json:"booking_id"`
	Status        model.BookingStatus `json:"booking_status"`
	TotalAmount   model.Money         `json:"total_amount"`
	WalletBalance model.Money         `json:"wallet_balance"`
	RemainingDue  model.Money         `json:"remaining_due"`
	PaymentWindow windowResp          `json:"payment_window"`
	Button        settlement.Button   `json:"button"`
	Now           time.Time           `json:"now"`
}

func toPaymentStateResp(s *settlement.PaymentState) paymentStateResp {
	return paymentStateResp{
		BookingID:     s.Booking.BookingID,
		Status:        s.Booking.Status,
		TotalAmount:   s.Booking.TotalAmount,
		WalletBalance: s.Booking.WalletBalance,
		RemainingDue:  s.RemainingDue,
		PaymentWindow: windowResp{Start: s.Window.Start, End: s.Window.End},
		Button:        s.Button,
		Now:           s.Now,
	}
}

type bookingDetailResp struct {
	Booking      bookingResp      `json:"booking"`
	Slot         slotResp         `json:"slot"`
	PaymentState paymentStateResp `json:"payment_state"`
}

// MyBookings handles GET /api/bookings/my-bookings.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	list, err := h.Bookings.ListByUser(ctx, uid)
	if err != nil {
		return failErr(c, err)
	}
	out := make([]bookingResp, 0, len(list))
	for i := range list {
		out = append(out, toBookingResp(&list[i]))
	}
	return ok(c, http.StatusOK, "bookings", out)
}

// Get handles GET /api/bookings/:id.  Only participants may read it.
func (h *BookingHandler) Get(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := idParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "bad_request", "invalid booking id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	state, err := h.Engine.State(ctx, id, uid)
	if err != nil {
		return failErr(c, err)
	}
	slot, err := h.Slots.Slot(ctx, state.Booking.SlotID)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "booking", bookingDetailResp{
		Booking:      toBookingResp(&state.Booking),
		Slot:         toSlotResp(slot, h.Engine.Location()),
		PaymentState: toPaymentStateResp(state),
	})
}

// PaymentState handles GET /api/bookings/:id/payment-state.
func (h *BookingHandler) PaymentState(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := idParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "bad_request", "invalid booking id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	state, err := h.Engine.State(ctx, id, uid)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "payment state", toPaymentStateResp(state))
}
