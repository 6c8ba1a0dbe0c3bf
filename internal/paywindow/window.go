// Package paywindow derives the payment window of a meal slot.  A slot may
// only be paid for between thirty minutes before it starts and the moment it
// starts.  The window is computed once when the slot is created and stored
// alongside it as two wall-clock times.
package paywindow

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Lead is how long before a slot starts its payment window opens.
const Lead = 30 * time.Minute

const secondsPerDay = 24 * 60 * 60

// ErrInvalidTimeFormat is returned for clock strings that are not HH:MM or HH:MM:SS.
var ErrInvalidTimeFormat = errors.New("invalid time format")

var clockPattern = regexp.MustCompile(`^(\d{2}):(\d{2})(?::(\d{2}))?$`)

// TimeOfDay is a wall-clock time expressed as seconds since midnight.  It
// carries no date and no location.
type TimeOfDay int

// Clock builds a TimeOfDay from its components.  Out-of-range components
// are rejected with ErrInvalidTimeFormat.
func Clock(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTimeFormat, hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// Parse reads an HH:MM or HH:MM:SS string.
func Parse(s string) (TimeOfDay, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	return Clock(h, mi, sec)
}

// MustParse is like Parse but panics on malformed input.  Intended for
// constants and tests.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

// Truncate drops the seconds.
func (t TimeOfDay) Truncate() TimeOfDay { return t - TimeOfDay(t.Second()) }

// Add shifts the clock by d, wrapping around midnight.  Sub-second parts of
// d are ignored.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	s := (int(t) + int(d/time.Second)) % secondsPerDay
	if s < 0 {
		s += secondsPerDay
	}
	return TimeOfDay(s)
}

// String formats the clock as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// On anchors the clock to the calendar day of date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// Compute returns the payment window for a slot starting at start.  The
// start of the window is Lead earlier on the clock; it wraps around
// midnight without moving to the previous day.  Both ends are truncated to
// the minute.
func Compute(start TimeOfDay) (windowStart, windowEnd TimeOfDay) {
	windowEnd = start.Truncate()
	windowStart = windowEnd.Add(-Lead)
	return windowStart, windowEnd
}

// ComputeString parses start and returns both window ends formatted as HH:MM:SS.
func ComputeString(start string) (string, string, error) {
	t, err := Parse(start)
	if err != nil {
		return "", "", err
	}
	ws, we := Compute(t)
	return ws.String(), we.String(), nil
}

// Scan implements sql.Scanner for MySQL TIME columns.
func (t *TimeOfDay) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*t = 0
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	case time.Time:
		*t = TimeOfDay(v.Hour()*3600 + v.Minute()*60 + v.Second())
		return nil
	default:
		return fmt.Errorf("paywindow: cannot scan %T into TimeOfDay", src)
	}
	// MySQL may return fractional seconds ("12:00:00.000000").
	if len(s) > 8 {
		s = s[:8]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) { return t.String(), nil }

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimeFormat, string(b))
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a payment window anchored to real instants.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Resolve anchors the stored window clocks to the slot's calendar date in
// loc.  Both ends use the same calendar day, so a window that wrapped past
// midnight in Compute ends up with Start after End.
func Resolve(slotDate time.Time, windowStart, windowEnd TimeOfDay, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{
		Start: windowStart.On(slotDate, loc),
		End:   windowEnd.On(slotDate, loc),
	}
}

// Contains reports whether t lies inside the window, inclusive on both ends.
func (w Window) Contains(t time.Time) bool { return !t.Before(w.Start) && !t.After(w.End) }

// Expired reports whether t is past the end of the window.
func (w Window) Expired(t time.Time) bool { return t.After(w.End) }

// Pending reports whether the window has not opened yet at t.
func (w Window) Pending(t time.Time) bool { return t.Before(w.Start) }
