package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusNoShow         BookingStatus = "no_show"
)

var statusLabels = map[BookingStatus]string{
	StatusPendingPayment: "Pending Payment",
	StatusConfirmed:      "Confirmed",
	StatusCompleted:      "Completed",
	StatusCancelled:      "Cancelled",
	StatusNoShow:         "No Show",
}

// IsValid reports whether s is one of the known statuses.
func (s BookingStatus) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label is the human readable form shown on the payment button.
func (s BookingStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Booking is a row of the `bookings` table.  WalletBalance is the
// booking's own ledger: the sum of contributions made towards
// TotalAmount.  It only grows, and only while the booking is
// pending_payment.
//
// Fields:
//  BookingID        – primary key.
//  BookingReference – short public reference, e.g. "BK-3F9A1C2D".
//  SlotID           – meal slot being booked.
//  PrimaryUserID    – user who created the booking.
//  IsGroupBooking   – whether other users share the bill.
//  GroupSize        – number of diners.
//  Status           – lifecycle state.
//  TotalAmount      – bill in paise.
//  WalletBalance    – amount contributed so far, in paise.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
	BookingID        uint64        // bookings.booking_id
	BookingReference string        // bookings.booking_reference
	SlotID           uint64        // bookings.slot_id
	PrimaryUserID    uint64        // bookings.primary_user_id
	IsGroupBooking   bool          // bookings.is_group_booking
	GroupSize        int           // bookings.group_size
	Status           BookingStatus // bookings.booking_status
	TotalAmount      Money         // bookings.total_amount_paise
	WalletBalance    Money         // bookings.wallet_balance_paise
	CreatedAt        time.Time     // bookings.created_at
	UpdatedAt        time.Time     // bookings.updated_at
}

// RemainingDue is what is still needed to fully fund the booking.
func (b Booking) RemainingDue() Money {
	if b.WalletBalance >= b.TotalAmount {
		return 0
	}
	return b.TotalAmount - b.WalletBalance
}

// Funded reports whether the booking wallet covers the total.
func (b Booking) Funded() bool { return b.WalletBalance >= b.TotalAmount }

// GroupMember is a row of `booking_group_members`.
type GroupMember struct {
	MemberID  uint64    // booking_group_members.member_id
	BookingID uint64    // booking_group_members.booking_id
	UserID    uint64    // booking_group_members.user_id
	JoinedAt  time.Time // booking_group_members.joined_at
}
