// Package queue defines the payment event payloads exchanged over RabbitMQ
// and the background consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// Queue names.  Events are published on the default exchange with the
// queue name as routing key.
const (
	QueueBookingConfirmed  = "booking.confirmed"
	QueueWalletContributed = "wallet.contributed"
)

// Queues lists every queue the publisher declares and the consumer reads.
var Queues = []string{QueueBookingConfirmed, QueueWalletContributed}

// BookingConfirmedEvent is published when a booking moves to confirmed.
type BookingConfirmedEvent struct {
	EventID          string      `json:"event_id"`
	BookingID        uint64      `json:"booking_id"`
	BookingReference string      `json:"booking_reference"`
	SlotID           uint64      `json:"slot_id"`
	SettledBy        uint64      `json:"settled_by"`
	TotalAmount      model.Money `json:"total_amount"`
	ConfirmedAt      time.Time   `json:"confirmed_at"`
}

// WalletContributedEvent is published when money moves from a personal
// wallet into a booking wallet.
type WalletContributedEvent struct {
	EventID              string      `json:"event_id"`
	BookingID            uint64      `json:"booking_id"`
	UserID               uint64      `json:"user_id"`
	Amount               model.Money `json:"amount"`
	BookingWalletBalance model.Money `json:"booking_wallet_balance"`
	PersonalBalance      model.Money `json:"personal_balance"`
	ContributedAt        time.Time   `json:"contributed_at"`
}

// NewBookingConfirmed builds the wire payload of ev with a fresh event ID.
func NewBookingConfirmed(ev settlement.ConfirmedEvent) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		EventID:          uuid.NewString(),
		BookingID:        ev.Booking.BookingID,
		BookingReference: ev.Booking.BookingReference,
		SlotID:           ev.Booking.SlotID,
		SettledBy:        ev.SettledBy,
		TotalAmount:      ev.Booking.TotalAmount,
		ConfirmedAt:      ev.ConfirmedAt.UTC(),
	}
}

// NewWalletContributed builds the wire payload of ev with a fresh event ID.
func NewWalletContributed(ev settlement.ContributedEvent) WalletContributedEvent {
	c := ev.Contribution
	return WalletContributedEvent{
		EventID:              uuid.NewString(),
		BookingID:            c.BookingID,
		UserID:               c.UserID,
		Amount:               c.Amount,
		BookingWalletBalance: c.BookingWalletBalance,
		PersonalBalance:      c.PersonalBalance,
		ContributedAt:        ev.ContributedAt.UTC(),
	}
}
