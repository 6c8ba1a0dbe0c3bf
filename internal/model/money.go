package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Money is an amount in paise (1/100 rupee).  All arithmetic on balances
// is done on this integer representation; rupees only appear at the JSON
// boundary, where 500 means 50000 paise.
type Money int64

// FromRupees converts a rupee amount to paise, rounding to the nearest paisa.
func FromRupees(r float64) Money { return Money(math.Round(r * 100)) }

// Rupees returns the amount as a rupee float, for display only.
func (m Money) Rupees() float64 { return float64(m) / 100 }

// String formats the amount with two decimals, e.g. "-12.05".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON writes the amount as a JSON number in rupees.
func (m Money) MarshalJSON() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalJSON accepts a rupee number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if json.Unmarshal(b, &s) != nil {
			return fmt.Errorf("money: %w", err)
		}
		parsed, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return fmt.Errorf("money: %w", perr)
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("money: invalid amount %s", string(b))
	}
	*m = FromRupees(f)
	return nil
}
