package settlement

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
)

// Sentinel errors returned by the engine and by Ledger implementations.
// Callers match them with errors.Is.
var (
	ErrInvalidTimeFormat    = paywindow.ErrInvalidTimeFormat
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("booking is not pending payment")
	ErrInsufficientFunds    = errors.New("insufficient funds in personal wallet")
	ErrExceedsAmountDue     = errors.New("amount exceeds remaining due")
	ErrConflict             = errors.New("conflict")
	ErrPaymentWindowExpired = errors.New("payment window expired")
	ErrTooEarly             = errors.New("payment window not open yet")
	ErrInsufficientBalance  = errors.New("booking wallet does not cover the total")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrNotParticipant       = errors.New("user is not part of this booking")

	// ErrAlreadySettled is a conflict where the competing writer confirmed
	// the booking.
	ErrAlreadySettled = fmt.Errorf("%w: booking already settled", ErrConflict)
)

var errorCodes = []struct {
	err  error
	code string
}{
	// more specific first
	{ErrAlreadySettled, "already_settled"},
	{ErrConflict, "conflict"},
	{ErrInvalidTimeFormat, "invalid_time_format"},
	{ErrNotFound, "not_found"},
	{ErrInvalidState, "invalid_state"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrExceedsAmountDue, "exceeds_amount_due"},
	{ErrPaymentWindowExpired, "payment_window_expired"},
	{ErrTooEarly, "too_early"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrNotParticipant, "not_participant"},
}

// Code returns the stable snake_case code of err, or "" if err is not one
// of the package's sentinels.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
