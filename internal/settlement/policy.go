package settlement

import (
	"time"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
)

// Action is what pressing the payment button does.
type Action string

const (
	ActionNone       Action = ""
	ActionSettle     Action = "settle"
	ActionContribute Action = "contribute"
)

// Button describes the payment button shown for a booking.
type Button struct {
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
	Action  Action `json:"action,omitempty"`
}

// ButtonState decides the payment button for a booking at now.  The rules
// are evaluated in order and the first match wins.
func ButtonState(status model.BookingStatus, total, balance model.Money, now, windowStart, windowEnd time.Time) Button {
	switch {
	case status != model.StatusPendingPayment:
		return Button{Label: status.Label()}
	case now.After(windowEnd):
		return Button{Label: "Payment Expired"}
	case !now.Before(windowStart) && balance >= total:
		return Button{Label: "Pay Bill", Enabled: true, Action: ActionSettle}
	case total == balance && now.Before(windowStart):
		return Button{Label: "Funded"}
	default:
		return Button{Label: "Add Money", Enabled: true, Action: ActionContribute}
	}
}
