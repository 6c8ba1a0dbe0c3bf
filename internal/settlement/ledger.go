package settlement

import (
	"context"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
)

// Transfer moves Amount from UserID's personal wallet into the booking
// wallet of BookingID.
type Transfer struct {
	BookingID uint64
	UserID    uint64
	Amount    model.Money
}

// TransferCheck validates a transfer against the booking and wallet rows
// as they are while locked.  A non-nil error aborts the transfer and is
// returned to the caller unchanged.
type TransferCheck func(b model.Booking, w model.PersonalWallet) error

// TransferResult holds the rows after a committed transfer.
type TransferResult struct {
	Booking       model.Booking
	Wallet        model.PersonalWallet
	TransactionID uint64
}

// Ledger is the storage the engine settles against.  Implementations
// return ErrNotFound for missing rows.
//
// Transfer must be all-or-nothing: the personal wallet is debited, the
// booking wallet credited and a contribution transaction recorded, or
// nothing changes.  check runs with both rows locked, booking first.
//
// SetStatus is a compare-and-swap: it returns ErrConflict when the
// current status is not from.
type Ledger interface {
	Booking(ctx context.Context, bookingID uint64) (*model.Booking, error)
	Slot(ctx context.Context, slotID uint64) (*model.MealSlot, error)
	Wallet(ctx context.Context, userID uint64) (*model.PersonalWallet, error)
	IsParticipant(ctx context.Context, bookingID, userID uint64) (bool, error)
	Transfer(ctx context.Context, t Transfer, check TransferCheck) (*TransferResult, error)
	SetStatus(ctx context.Context, bookingID uint64, from, to model.BookingStatus) (*model.Booking, error)
}
