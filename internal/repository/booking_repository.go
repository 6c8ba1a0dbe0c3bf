package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

const bookingColumns = `booking_id, booking_reference, slot_id, primary_user_id, is_group_booking,
	group_size, booking_status, total_amount_paise, wallet_balance_paise, created_at, updated_at`

// BookingRepo reads bookings and applies the two writes settlement needs:
// crediting the booking wallet and swapping the status.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// GetByID returns the booking or settlement.ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// GetForUpdateTx reads the booking and locks its row until tx ends.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// ListByUser returns the bookings userID created or joined, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE primary_user_id = ?
		   OR booking_id IN (SELECT booking_id FROM booking_group_members WHERE user_id = ?)
		ORDER BY created_at DESC, booking_id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// IsParticipant reports whether userID is the primary user or a group
// member of the booking.
func (r *BookingRepo) IsParticipant(ctx context.Context, bookingID, userID uint64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT
		EXISTS(SELECT 1 FROM bookings WHERE booking_id = ? AND primary_user_id = ?)
		OR EXISTS(SELECT 1 FROM booking_group_members WHERE booking_id = ? AND user_id = ?)`,
		bookingID, userID, bookingID, userID).Scan(&ok)
	return ok, err
}

// IncreaseWalletBalanceTx credits the booking wallet atomically.  The row
// must still be pending payment and the new balance may not pass the
// total; otherwise ErrConflict is returned and nothing changes.
func (r *BookingRepo) IncreaseWalletBalanceTx(ctx context.Context, tx *sql.Tx, id uint64, amount model.Money) error {
	if amount <= 0 {
		return settlement.ErrInvalidAmount
	}
	res, err := tx.ExecContext(ctx, `UPDATE bookings
		SET wallet_balance_paise = wallet_balance_paise + ?
		WHERE booking_id = ? AND booking_status = ? AND wallet_balance_paise + ? <= total_amount_paise`,
		amount, id, model.StatusPendingPayment, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrConflict
	}
	return nil
}

// CompareAndSetStatus moves the booking from one status to another only if
// it is currently in from.  It returns settlement.ErrNotFound for an
// unknown booking and settlement.ErrConflict when the status differs.
func (r *BookingRepo) CompareAndSetStatus(ctx context.Context, id uint64, from, to model.BookingStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET booking_status = ? WHERE booking_id = ? AND booking_status = ?`,
		to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return settlement.ErrNotFound
	}
	return settlement.ErrConflict
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.BookingID, &b.BookingReference, &b.SlotID, &b.PrimaryUserID, &b.IsGroupBooking,
		&b.GroupSize, &b.Status, &b.TotalAmount, &b.WalletBalance, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
