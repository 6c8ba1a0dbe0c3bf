// Package settlement moves money from personal wallets into booking
// wallets and confirms bookings once they are fully funded inside the
// slot's payment window.
//
// The Engine holds no mutable state.  Contributions rely on the Ledger's
// transactional Transfer; settlement relies on the Ledger's
// compare-and-swap SetStatus, so two concurrent settlements of the same
// booking produce exactly one confirmation.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
)

const tracerName = "github.com/iliyamo/cafeteria-prebooking/internal/settlement"

// ConfirmedEvent is emitted after a booking moves to confirmed.
type ConfirmedEvent struct {
	Booking     model.Booking
	SettledBy   uint64
	ConfirmedAt time.Time
}

// ContributedEvent is emitted after a contribution commits.
type ContributedEvent struct {
	Contribution  Contribution
	ContributedAt time.Time
}

// Events receives notifications after state changes commit.  Failures
// are logged and never undo or fail the operation.
type Events interface {
	BookingConfirmed(ctx context.Context, ev ConfirmedEvent) error
	WalletContributed(ctx context.Context, ev ContributedEvent) error
}

type nopEvents struct{}

func (nopEvents) BookingConfirmed(context.Context, ConfirmedEvent) error     { return nil }
func (nopEvents) WalletContributed(context.Context, ContributedEvent) error { return nil }

// ContributeRequest asks to move Amount from UserID's personal wallet into
// the booking wallet of BookingID.
type ContributeRequest struct {
	BookingID uint64
	UserID    uint64
	Amount    model.Money
}

// Contribution is the outcome of a committed contribution.
type Contribution struct {
	BookingID            uint64      `json:"booking_id"`
	UserID               uint64      `json:"user_id"`
	Amount               model.Money `json:"amount"`
	BookingWalletBalance model.Money `json:"booking_wallet_balance"`
	PersonalBalance      model.Money `json:"personal_balance"`
	RemainingDue         model.Money `json:"remaining_due"`
	TransactionID        uint64      `json:"transaction_id"`
}

// SettleRequest asks to confirm BookingID.  A zero UserID skips the
// participant check, for internal callers.
type SettleRequest struct {
	BookingID uint64
	UserID    uint64
}

// PaymentState is a snapshot of a booking's payment situation at Now.
type PaymentState struct {
	Booking      model.Booking
	Window       paywindow.Window
	RemainingDue model.Money
	Button       Button
	Now          time.Time
}

// Engine runs contributions and settlements against a Ledger.
type Engine struct {
	ledger Ledger
	events Events
	now    func() time.Time
	loc    *time.Location
	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the cafeteria time zone used to anchor payment windows.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithEvents sets the post-commit event sink.
func WithEvents(ev Events) Option {
	return func(e *Engine) {
		if ev != nil {
			e.events = ev
		}
	}
}

// NewEngine returns an Engine over l.  Without options it uses the wall
// clock, UTC and no events.
func NewEngine(l Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger: l,
		events: nopEvents{},
		now:    time.Now,
		loc:    time.UTC,
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Location is the time zone windows are resolved in.
func (e *Engine) Location() *time.Location { return e.loc }

// Contribute moves money from the caller's personal wallet into a booking
// wallet.  The amount must be positive, the booking pending payment and
// the amount no larger than either the personal balance or the remaining
// due.
func (e *Engine) Contribute(ctx context.Context, req ContributeRequest) (*Contribution, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.Contribute", trace.WithAttributes(
		attribute.Int64("booking.id", int64(req.BookingID)),
		attribute.Int64("user.id", int64(req.UserID)),
		attribute.Int64("amount.paise", int64(req.Amount)),
	))
	defer span.End()

	if req.Amount <= 0 {
		return nil, fail(span, ErrInvalidAmount)
	}
	b, err := e.ledger.Booking(ctx, req.BookingID)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := e.authorize(ctx, b, req.UserID); err != nil {
		return nil, fail(span, err)
	}

	amount := req.Amount
	res, err := e.ledger.Transfer(ctx, Transfer{BookingID: req.BookingID, UserID: req.UserID, Amount: amount},
		func(b model.Booking, w model.PersonalWallet) error {
			if b.Status != model.StatusPendingPayment {
				return ErrInvalidState
			}
			if amount > w.Balance {
				return ErrInsufficientFunds
			}
			if amount > b.TotalAmount-b.WalletBalance {
				return ErrExceedsAmountDue
			}
			return nil
		})
	if err != nil {
		return nil, fail(span, err)
	}

	c := &Contribution{
		BookingID:            res.Booking.BookingID,
		UserID:               req.UserID,
		Amount:               amount,
		BookingWalletBalance: res.Booking.WalletBalance,
		PersonalBalance:      res.Wallet.Balance,
		RemainingDue:         res.Booking.RemainingDue(),
		TransactionID:        res.TransactionID,
	}
	if err := e.events.WalletContributed(ctx, ContributedEvent{Contribution: *c, ContributedAt: e.now()}); err != nil {
		log.Warnf("settlement: wallet.contributed for booking %d not published: %v", c.BookingID, err)
	}
	return c, nil
}

// Settle confirms a fully funded booking while its payment window is open.
// When another request confirms the booking first, ErrAlreadySettled is
// returned.
func (e *Engine) Settle(ctx context.Context, req SettleRequest) (*model.Booking, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(
		attribute.Int64("booking.id", int64(req.BookingID)),
		attribute.Int64("user.id", int64(req.UserID)),
	))
	defer span.End()

	b, err := e.ledger.Booking(ctx, req.BookingID)
	if err != nil {
		return nil, fail(span, err)
	}
	if req.UserID != 0 {
		if err := e.authorize(ctx, b, req.UserID); err != nil {
			return nil, fail(span, err)
		}
	}
	if b.Status != model.StatusPendingPayment {
		return nil, fail(span, ErrInvalidState)
	}
	w, err := e.window(ctx, b)
	if err != nil {
		return nil, fail(span, err)
	}
	now := e.now()
	switch {
	case w.Expired(now):
		return nil, fail(span, ErrPaymentWindowExpired)
	case w.Pending(now):
		return nil, fail(span, ErrTooEarly)
	case b.WalletBalance < b.TotalAmount:
		return nil, fail(span, ErrInsufficientBalance)
	}

	updated, err := e.ledger.SetStatus(ctx, b.BookingID, model.StatusPendingPayment, model.StatusConfirmed)
	if errors.Is(err, ErrConflict) {
		if cur, rerr := e.ledger.Booking(ctx, b.BookingID); rerr == nil && cur.Status == model.StatusConfirmed {
			return nil, fail(span, ErrAlreadySettled)
		}
		return nil, fail(span, ErrConflict)
	}
	if err != nil {
		return nil, fail(span, err)
	}

	if err := e.events.BookingConfirmed(ctx, ConfirmedEvent{Booking: *updated, SettledBy: req.UserID, ConfirmedAt: now}); err != nil {
		log.Warnf("settlement: booking.confirmed for booking %d not published: %v", updated.BookingID, err)
	}
	return updated, nil
}

// State reports the booking's payment window, remaining due and button
// for the current clock.
func (e *Engine) State(ctx context.Context, bookingID, userID uint64) (*PaymentState, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.State", trace.WithAttributes(
		attribute.Int64("booking.id", int64(bookingID)),
	))
	defer span.End()

	b, err := e.ledger.Booking(ctx, bookingID)
	if err != nil {
		return nil, fail(span, err)
	}
	if userID != 0 {
		if err := e.authorize(ctx, b, userID); err != nil {
			return nil, fail(span, err)
		}
	}
	w, err := e.window(ctx, b)
	if err != nil {
		return nil, fail(span, err)
	}
	now := e.now().In(e.loc)
	return &PaymentState{
		Booking:      *b,
		Window:       w,
		RemainingDue: b.RemainingDue(),
		Button:       ButtonState(b.Status, b.TotalAmount, b.WalletBalance, now, w.Start, w.End),
		Now:          now,
	}, nil
}

func (e *Engine) authorize(ctx context.Context, b *model.Booking, userID uint64) error {
	if userID != 0 && b.PrimaryUserID == userID {
		return nil
	}
	ok, err := e.ledger.IsParticipant(ctx, b.BookingID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func (e *Engine) window(ctx context.Context, b *model.Booking) (paywindow.Window, error) {
	slot, err := e.ledger.Slot(ctx, b.SlotID)
	if err != nil {
		return paywindow.Window{}, fmt.Errorf("slot %d of booking %d: %w", b.SlotID, b.BookingID, err)
	}
	return slot.Window(e.loc), nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, Code(err))
	return err
}
