package model

import (
	"time"

	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
)

// MealSlot is a row of the `meal_slots` table: a serving period on a given
// day.  The payment window is computed from StartTime when the slot is
// created and stored with it; it is never recomputed on read.
//
// Fields:
//  SlotID             – primary key.
//  SlotName           – display name, e.g. "Lunch".
//  SlotDate           – calendar date the slot is served on.
//  StartTime          – wall-clock start in the cafeteria location.
//  EndTime            – wall-clock end.
//  MaxCapacity        – maximum number of diners.
//  CurrentOccupancy   – diners booked so far.
//  IsActive           – inactive slots are hidden from listings.
//  PaymentWindowStart – StartTime minus thirty minutes, on the clock.
//  PaymentWindowEnd   – StartTime truncated to the minute.
//  CreatedAt          – creation timestamp.
type MealSlot struct {
	SlotID             uint64              // meal_slots.slot_id
	SlotName           string              // meal_slots.slot_name
	SlotDate           time.Time           // meal_slots.slot_date
	StartTime          paywindow.TimeOfDay // meal_slots.start_time
	EndTime            paywindow.TimeOfDay // meal_slots.end_time
	MaxCapacity        int                 // meal_slots.max_capacity
	CurrentOccupancy   int                 // meal_slots.current_occupancy
	IsActive           bool                // meal_slots.is_active
	PaymentWindowStart paywindow.TimeOfDay // meal_slots.payment_window_start
	PaymentWindowEnd   paywindow.TimeOfDay // meal_slots.payment_window_end
	CreatedAt          time.Time           // meal_slots.created_at
}

// Window anchors the stored payment window to the slot's date in loc.
func (s MealSlot) Window(loc *time.Location) paywindow.Window {
	return paywindow.Resolve(s.SlotDate, s.PaymentWindowStart, s.PaymentWindowEnd, loc)
}

// AvailableSeats is the remaining capacity, never negative.
func (s MealSlot) AvailableSeats() int {
	if s.CurrentOccupancy >= s.MaxCapacity {
		return 0
	}
	return s.MaxCapacity - s.CurrentOccupancy
}
