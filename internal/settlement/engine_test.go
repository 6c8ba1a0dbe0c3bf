package settlement_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordedEvents struct {
	mu          sync.Mutex
	confirmed   []settlement.ConfirmedEvent
	contributed []settlement.ContributedEvent
	err         error
}

func (r *recordedEvents) BookingConfirmed(_ context.Context, ev settlement.ConfirmedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, ev)
	return r.err
}

func (r *recordedEvents) WalletContributed(_ context.Context, ev settlement.ContributedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contributed = append(r.contributed, ev)
	return r.err
}

type fixture struct {
	ledger *settlementtest.Ledger
	clock  *clock
	events *recordedEvents
	engine *settlement.Engine
}

// newFixture seeds a lunch slot starting at 12:00 UTC, a pending booking
// of 500 rupees and two participants.
func newFixture(t *testing.T, total, balance model.Money) *fixture {
	t.Helper()
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
		TotalAmount:      total,
		WalletBalance:    balance,
	})
	l.AddMember(bookingID, member)
	l.PutWallet(primary, 30000)
	l.PutWallet(member, 40000)
	l.PutWallet(outsider, 100000)

	c := &clock{t: at(11, 0, 0)}
	ev := &recordedEvents{}
	e := settlement.NewEngine(l,
		settlement.WithClock(c.Now),
		settlement.WithLocation(time.UTC),
		settlement.WithEvents(ev),
	)
	return &fixture{ledger: l, clock: c, events: ev, engine: e}
}

func (f *fixture) booking(t *testing.T) model.Booking {
	t.Helper()
	b, err := f.ledger.Booking(context.Background(), bookingID)
	require.NoError(t, err)
	return *b
}

func (f *fixture) wallet(t *testing.T, userID uint64) model.Money {
	t.Helper()
	w, err := f.ledger.Wallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func TestGroupBookingIsFundedAndSettled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50000, 0)

	c, err := f.engine.Contribute(ctx, settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: 30000})
	require.NoError(t, err)
	assert.Equal(t, model.Money(30000), c.BookingWalletBalance)
	assert.Equal(t, model.Money(0), c.PersonalBalance)
	assert.Equal(t, model.Money(20000), c.RemainingDue)
	assert.NotZero(t, c.TransactionID)

	_, err = f.engine.Contribute(ctx, settlement.ContributeRequest{BookingID: bookingID, UserID: member, Amount: 25000})
	assert.ErrorIs(t, err, settlement.ErrExceedsAmountDue)

	c, err = f.engine.Contribute(ctx, settlement.ContributeRequest{BookingID: bookingID, UserID: member, Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, model.Money(50000), c.BookingWalletBalance)
	assert.Equal(t, model.Money(0), c.RemainingDue)
	assert.Equal(t, model.Money(20000), f.wallet(t, member))

	_, err = f.engine.Settle(ctx, settlement.SettleRequest{BookingID: bookingID, UserID: primary})
	assert.ErrorIs(t, err, settlement.ErrTooEarly)

	f.clock.Set(at(11, 45, 0))
	b, err := f.engine.Settle(ctx, settlement.SettleRequest{BookingID: bookingID, UserID: member})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Equal(t, model.Money(50000), b.TotalAmount)
	assert.Equal(t, model.Money(50000), b.WalletBalance)

	_, err = f.engine.Contribute(ctx, settlement.ContributeRequest{BookingID: bookingID, UserID: member, Amount: 100})
	assert.ErrorIs(t, err, settlement.ErrInvalidState)
	_, err = f.engine.Settle(ctx, settlement.SettleRequest{BookingID: bookingID, UserID: primary})
	assert.ErrorIs(t, err, settlement.ErrInvalidState)

	require.Len(t, f.events.contributed, 2)
	require.Len(t, f.events.confirmed, 1)
	assert.Equal(t, uint64(member), f.events.confirmed[0].SettledBy)
	assert.Equal(t, at(11, 45, 0), f.events.confirmed[0].ConfirmedAt)

	txs := f.ledger.Transactions(member)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxContribution, txs[0].Type)
	assert.Equal(t, model.Money(-20000), txs[0].Amount)
}

func TestSettleWindowBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		balance model.Money
		wantErr error
	}{
		{"before window", at(11, 29, 59), 50000, settlement.ErrTooEarly},
		{"window opens", at(11, 30, 0), 50000, nil},
		{"window closes", at(12, 0, 0), 50000, nil},
		{"after window", at(12, 0, 1), 50000, settlement.ErrPaymentWindowExpired},
		{"after window and unfunded", at(13, 0, 0), 100, settlement.ErrPaymentWindowExpired},
		{"inside window unfunded", at(11, 50, 0), 49999, settlement.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 50000, tt.balance)
			f.clock.Set(tt.now)
			b, err := f.engine.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID, UserID: primary})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, model.StatusPendingPayment, f.booking(t).Status)
				assert.Empty(t, f.events.confirmed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.StatusConfirmed, b.Status)
		})
	}
}

func TestSettleUsesCafeteriaLocation(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	f := newFixture(t, 50000, 50000)
	e := settlement.NewEngine(f.ledger, settlement.WithLocation(ist), settlement.WithClock(func() time.Time {
		// 11:45 IST
		return time.Date(2026, 10, 18, 6, 15, 0, 0, time.UTC)
	}))
	b, err := e.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID, UserID: primary})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Equal(t, ist, e.Location())
}

func TestContributeRejections(t *testing.T) {
	tests := []struct {
		name    string
		req     settlement.ContributeRequest
		wantErr error
	}{
		{"zero amount", settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: 0}, settlement.ErrInvalidAmount},
		{"negative amount", settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: -100}, settlement.ErrInvalidAmount},
		{"unknown booking", settlement.ContributeRequest{BookingID: 404, UserID: primary, Amount: 100}, settlement.ErrNotFound},
		{"outsider", settlement.ContributeRequest{BookingID: bookingID, UserID: outsider, Amount: 100}, settlement.ErrNotParticipant},
		{"more than personal balance", settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: 30001}, settlement.ErrInsufficientFunds},
		{"more than remaining due", settlement.ContributeRequest{BookingID: bookingID, UserID: member, Amount: 40000}, settlement.ErrExceedsAmountDue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 50000, 15000)
			_, err := f.engine.Contribute(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, model.Money(15000), f.booking(t).WalletBalance)
			assert.Equal(t, model.Money(30000), f.wallet(t, primary))
			assert.Equal(t, model.Money(40000), f.wallet(t, member))
			assert.Empty(t, f.events.contributed)
		})
	}
}

func TestContributeChecksStateBeforeFunds(t *testing.T) {
	f := newFixture(t, 50000, 0)
	b := f.booking(t)
	b.Status = model.StatusCancelled
	f.ledger.PutBooking(b)

	_, err := f.engine.Contribute(context.Background(), settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: 999999})
	assert.ErrorIs(t, err, settlement.ErrInvalidState)
}

func TestContributeExactRemainingDue(t *testing.T) {
	f := newFixture(t, 50000, 20000)
	c, err := f.engine.Contribute(context.Background(), settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: 30000})
	require.NoError(t, err)
	assert.Equal(t, model.Money(50000), c.BookingWalletBalance)
	assert.Equal(t, model.Money(0), c.RemainingDue)
}

func TestEventFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, 50000, 0)
	f.events.err = errors.New("broker down")

	_, err := f.engine.Contribute(context.Background(), settlement.ContributeRequest{BookingID: bookingID, UserID: member, Amount: 40000})
	require.NoError(t, err)
	_, err = f.engine.Contribute(context.Background(), settlement.ContributeRequest{BookingID: bookingID, UserID: primary, Amount: 10000})
	require.NoError(t, err)

	f.clock.Set(at(11, 59, 0))
	_, err = f.engine.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID, UserID: primary})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, f.booking(t).Status)
}

func TestSettleParticipantCheck(t *testing.T) {
	f := newFixture(t, 50000, 50000)
	f.clock.Set(at(11, 40, 0))

	_, err := f.engine.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID, UserID: outsider})
	assert.ErrorIs(t, err, settlement.ErrNotParticipant)

	_, err = f.engine.Settle(context.Background(), settlement.SettleRequest{BookingID: 404, UserID: primary})
	assert.ErrorIs(t, err, settlement.ErrNotFound)

	// internal callers skip the participant check
	b, err := f.engine.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
}

func TestSettleMissingSlot(t *testing.T) {
	f := newFixture(t, 50000, 50000)
	b := f.booking(t)
	b.SlotID = 404
	f.ledger.PutBooking(b)

	_, err := f.engine.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID, UserID: primary})
	assert.ErrorIs(t, err, settlement.ErrNotFound)
}

// gatedLedger holds the first two booking reads until both have happened,
// so two settlements both see pending_payment before either swaps.
type gatedLedger struct {
	*settlementtest.Ledger
	reads atomic.Int32
	gate  sync.WaitGroup
}

func (g *gatedLedger) Booking(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := g.Ledger.Booking(ctx, id)
	if g.reads.Add(1) <= 2 {
		g.gate.Done()
		g.gate.Wait()
	}
	return b, err
}

func TestConcurrentSettleConfirmsOnce(t *testing.T) {
	f := newFixture(t, 50000, 50000)
	g := &gatedLedger{Ledger: f.ledger}
	g.gate.Add(2)
	e := settlement.NewEngine(g, settlement.WithClock(func() time.Time { return at(11, 45, 0) }), settlement.WithEvents(f.events))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []uint64{primary, member} {
		wg.Add(1)
		go func(i int, user uint64) {
			defer wg.Done()
			_, errs[i] = e.Settle(context.Background(), settlement.SettleRequest{BookingID: bookingID, UserID: user})
		}(i, user)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, settlement.ErrAlreadySettled):
			already++
			assert.ErrorIs(t, err, settlement.ErrConflict)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, already)
	assert.Len(t, f.events.confirmed, 1)
	assert.Equal(t, model.StatusConfirmed, f.booking(t).Status)
}

func TestConcurrentContributionsNeverOverfund(t *testing.T) {
	f := newFixture(t, 50000, 0)
	var users []uint64
	for u := uint64(100); u < 110; u++ {
		f.ledger.PutWallet(u, 10000)
		f.ledger.AddMember(bookingID, u)
		users = append(users, u)
	}

	var wg sync.WaitGroup
	var ok, exceeded atomic.Int32
	for _, u := range users {
		wg.Add(1)
		go func(u uint64) {
			defer wg.Done()
			_, err := f.engine.Contribute(context.Background(), settlement.ContributeRequest{BookingID: bookingID, UserID: u, Amount: 10000})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, settlement.ErrExceedsAmountDue):
				exceeded.Add(1)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(5), exceeded.Load())
	assert.Equal(t, model.Money(50000), f.booking(t).WalletBalance)
}

func TestState(t *testing.T) {
	f := newFixture(t, 50000, 10000)

	s, err := f.engine.State(context.Background(), bookingID, member)
	require.NoError(t, err)
	assert.Equal(t, at(11, 30, 0), s.Window.Start)
	assert.Equal(t, at(12, 0, 0), s.Window.End)
	assert.Equal(t, model.Money(40000), s.RemainingDue)
	assert.Equal(t, settlement.Button{Label: "Add Money", Enabled: true, Action: settlement.ActionContribute}, s.Button)

	_, err = f.engine.State(context.Background(), bookingID, outsider)
	assert.ErrorIs(t, err, settlement.ErrNotParticipant)
}

func TestCode(t *testing.T) {
	assert.Equal(t, "already_settled", settlement.Code(settlement.ErrAlreadySettled))
	assert.Equal(t, "conflict", settlement.Code(settlement.ErrConflict))
	assert.Equal(t, "too_early", settlement.Code(settlement.ErrTooEarly))
	assert.Equal(t, "invalid_time_format", settlement.Code(paywindow.ErrInvalidTimeFormat))
	assert.Equal(t, "not_found", settlement.Code(errors.Join(errors.New("slot 3"), settlement.ErrNotFound)))
	assert.Equal(t, "", settlement.Code(errors.New("boom")))
	assert.Equal(t, "", settlement.Code(nil))
}
