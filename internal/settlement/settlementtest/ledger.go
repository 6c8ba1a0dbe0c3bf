// Package settlementtest provides an in-memory settlement.Ledger for tests.
package settlementtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// Ledger is a mutex-guarded in-memory ledger.  Every method takes the
// lock for its whole duration, which gives Transfer the same
// all-or-nothing behaviour as a database transaction.
type Ledger struct {
	mu       sync.Mutex
	slots    map[uint64]model.MealSlot
	bookings map[uint64]model.Booking
	wallets  map[uint64]model.PersonalWallet
	members  map[uint64]map[uint64]bool
	txs      []model.WalletTransaction
	now      func() time.Time
}

var _ settlement.Ledger = (*Ledger)(nil)

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		slots:    map[uint64]model.MealSlot{},
		bookings: map[uint64]model.Booking{},
		wallets:  map[uint64]model.PersonalWallet{},
		members:  map[uint64]map[uint64]bool{},
		now:      time.Now,
	}
}

// PutSlot inserts or replaces a slot.
func (l *Ledger) PutSlot(s model.MealSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slots[s.SlotID] = s
}

// PutBooking inserts or replaces a booking.
func (l *Ledger) PutBooking(b model.Booking) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bookings[b.BookingID] = b
}

// PutWallet sets a user's personal balance.
func (l *Ledger) PutWallet(userID uint64, balance model.Money) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[userID] = model.PersonalWallet{UserID: userID, Balance: balance, UpdatedAt: l.now()}
}

// AddMember makes userID a group member of bookingID.
func (l *Ledger) AddMember(bookingID, userID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.members[bookingID] == nil {
		l.members[bookingID] = map[uint64]bool{}
	}
	l.members[bookingID][userID] = true
}

// Transactions returns the recorded transactions of userID, newest first.
func (l *Ledger) Transactions(userID uint64) []model.WalletTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.WalletTransaction
	for i := len(l.txs) - 1; i >= 0; i-- {
		if l.txs[i].UserID == userID {
			out = append(out, l.txs[i])
		}
	}
	return out
}

func (l *Ledger) Booking(_ context.Context, bookingID uint64) (*model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	return &b, nil
}

func (l *Ledger) Slot(_ context.Context, slotID uint64) (*model.MealSlot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[slotID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	return &s, nil
}

func (l *Ledger) Wallet(_ context.Context, userID uint64) (*model.PersonalWallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[userID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	return &w, nil
}

func (l *Ledger) IsParticipant(_ context.Context, bookingID, userID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok {
		return false, settlement.ErrNotFound
	}
	return b.PrimaryUserID == userID || l.members[bookingID][userID], nil
}

func (l *Ledger) Transfer(_ context.Context, t settlement.Transfer, check settlement.TransferCheck) (*settlement.TransferResult, error) {
	if t.Amount <= 0 {
		return nil, settlement.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[t.BookingID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	w, ok := l.wallets[t.UserID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	if check != nil {
		if err := check(b, w); err != nil {
			return nil, err
		}
	}
	if w.Balance < t.Amount {
		return nil, settlement.ErrInsufficientFunds
	}
	now := l.now()
	w.Balance -= t.Amount
	w.UpdatedAt = now
	b.WalletBalance += t.Amount
	b.UpdatedAt = now
	l.wallets[t.UserID] = w
	l.bookings[t.BookingID] = b

	id := uint64(len(l.txs) + 1)
	bookingID := t.BookingID
	l.txs = append(l.txs, model.WalletTransaction{
		ID:          id,
		UserID:      t.UserID,
		Amount:      -t.Amount,
		Type:        model.TxContribution,
		BookingID:   &bookingID,
		Description: "Contribution to booking " + b.BookingReference,
		CreatedAt:   now,
	})
	return &settlement.TransferResult{Booking: b, Wallet: w, TransactionID: id}, nil
}

func (l *Ledger) SetStatus(_ context.Context, bookingID uint64, from, to model.BookingStatus) (*model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[bookingID]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	if b.Status != from {
		return nil, settlement.ErrConflict
	}
	b.Status = to
	b.UpdatedAt = l.now()
	l.bookings[bookingID] = b
	return &b, nil
}

// ListByUser returns bookings where userID is the primary user or a group
// member, newest first.
func (l *Ledger) ListByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []model.Booking{}
	for id, b := range l.bookings {
		if b.PrimaryUserID == userID || l.members[id][userID] {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingID > out[j].BookingID })
	return out, nil
}

// ListTransactions pages through userID's transactions, newest first, and
// reports the total count.
func (l *Ledger) ListTransactions(_ context.Context, userID uint64, limit, offset int) ([]model.WalletTransaction, int, error) {
	all := l.Transactions(userID)
	total := len(all)
	if offset >= total {
		return []model.WalletTransaction{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
