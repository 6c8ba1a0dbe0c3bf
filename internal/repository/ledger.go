package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// SQLLedger implements settlement.Ledger on MySQL.  Transfer runs in a
// single transaction that locks the booking row first and the wallet row
// second; every writer uses that order.
type SQLLedger struct {
	db       *sql.DB
	slots    *SlotRepo
	bookings *BookingRepo
	wallets  *WalletRepo
}

var _ settlement.Ledger = (*SQLLedger)(nil)

// NewSQLLedger returns a ledger over db.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{
		db:       db,
		slots:    NewSlotRepo(db),
		bookings: NewBookingRepo(db),
		wallets:  NewWalletRepo(db),
	}
}

func (l *SQLLedger) Booking(ctx context.Context, id uint64) (*model.Booking, error) {
	return l.bookings.GetByID(ctx, id)
}

func (l *SQLLedger) Slot(ctx context.Context, id uint64) (*model.MealSlot, error) {
	return l.slots.GetByID(ctx, id)
}

func (l *SQLLedger) Wallet(ctx context.Context, userID uint64) (*model.PersonalWallet, error) {
	return l.wallets.Get(ctx, userID)
}

func (l *SQLLedger) IsParticipant(ctx context.Context, bookingID, userID uint64) (bool, error) {
	return l.bookings.IsParticipant(ctx, bookingID, userID)
}

// Transfer debits the personal wallet, credits the booking wallet and
// records a contribution, all in one transaction.  check sees both rows
// while they are locked.
func (l *SQLLedger) Transfer(ctx context.Context, t settlement.Transfer, check settlement.TransferCheck) (*settlement.TransferResult, error) {
	if t.Amount <= 0 {
		return nil, settlement.ErrInvalidAmount
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := l.bookings.GetForUpdateTx(ctx, tx, t.BookingID)
	if err != nil {
		return nil, err
	}
	w, err := l.wallets.GetForUpdateTx(ctx, tx, t.UserID)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(*b, *w); err != nil {
			return nil, err
		}
	}
	if err := l.wallets.DebitTx(ctx, tx, t.UserID, t.Amount); err != nil {
		return nil, err
	}
	if err := l.bookings.IncreaseWalletBalanceTx(ctx, tx, t.BookingID, t.Amount); err != nil {
		return nil, err
	}
	bookingID := t.BookingID
	txID, err := l.wallets.RecordTx(ctx, tx, model.WalletTransaction{
		UserID:      t.UserID,
		Amount:      -t.Amount,
		Type:        model.TxContribution,
		BookingID:   &bookingID,
		Description: "Contribution to booking " + b.BookingReference,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	committed = true

	b.WalletBalance += t.Amount
	w.Balance -= t.Amount
	return &settlement.TransferResult{Booking: *b, Wallet: *w, TransactionID: txID}, nil
}

// SetStatus swaps the booking status and returns the updated row.
func (l *SQLLedger) SetStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (*model.Booking, error) {
	if err := l.bookings.CompareAndSetStatus(ctx, id, from, to); err != nil {
		return nil, err
	}
	return l.bookings.GetByID(ctx, id)
}
