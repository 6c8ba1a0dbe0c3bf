package paywindow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "12:00", want: "12:00:00"},
		{in: "12:00:45", want: "12:00:45"},
		{in: "00:00", want: "00:00:00"},
		{in: "23:59:59", want: "23:59:59"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:60", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "12:00:00.5", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		start     string
		wantStart string
		wantEnd   string
	}{
		{"12:00", "11:30:00", "12:00:00"},
		{"12:00:45", "11:30:00", "12:00:00"},
		{"08:15:00", "07:45:00", "08:15:00"},
		{"00:30", "00:00:00", "00:30:00"},
		// wraps on the clock only
		{"00:10", "23:40:00", "00:10:00"},
		{"00:00", "23:30:00", "00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			ws, we, err := ComputeString(tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, ws)
			assert.Equal(t, tt.wantEnd, we)
		})
	}
}

func TestComputeAllMinutes(t *testing.T) {
	for s := 0; s < secondsPerDay; s += 37 {
		start := TimeOfDay(s)
		ws, we := Compute(start)
		assert.Equal(t, 0, we.Second())
		assert.Equal(t, start.Hour(), we.Hour())
		assert.Equal(t, start.Minute(), we.Minute())
		assert.Equal(t, TimeOfDay((int(we)-1800+secondsPerDay)%secondsPerDay), ws)
	}
}

func TestComputeStringRejectsMalformed(t *testing.T) {
	_, _, err := ComputeString("12h00")
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)
}

func TestResolve(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	date := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	ws, we := Compute(MustParse("12:00"))
	w := Resolve(date, ws, we, ist)

	assert.Equal(t, time.Date(2026, 10, 18, 11, 30, 0, 0, ist), w.Start)
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 0, 0, ist), w.End)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End.Add(time.Second)))
	assert.True(t, w.Pending(w.Start.Add(-time.Nanosecond)))
	assert.True(t, w.Expired(w.End.Add(time.Nanosecond)))
	assert.False(t, w.Expired(w.End))
}

func TestResolveAcrossMidnightKeepsDate(t *testing.T) {
	date := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	ws, we := Compute(MustParse("00:10"))
	w := Resolve(date, ws, we, time.UTC)

	assert.Equal(t, time.Date(2026, 10, 18, 23, 40, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 10, 0, 0, time.UTC), w.End)
	assert.True(t, w.Start.After(w.End))
	assert.False(t, w.Contains(time.Date(2026, 10, 18, 0, 5, 0, 0, time.UTC)))
}

func TestTimeOfDayScan(t *testing.T) {
	var tod TimeOfDay
	require.NoError(t, tod.Scan([]byte("11:30:00")))
	assert.Equal(t, "11:30:00", tod.String())

	require.NoError(t, tod.Scan("07:05:09.000000"))
	assert.Equal(t, "07:05:09", tod.String())

	assert.Error(t, tod.Scan(42))
}

func TestTimeOfDayJSON(t *testing.T) {
	b, err := json.Marshal(MustParse("09:05"))
	require.NoError(t, err)
	assert.JSONEq(t, `"09:05:00"`, string(b))

	var tod TimeOfDay
	require.NoError(t, json.Unmarshal([]byte(`"18:45:30"`), &tod))
	assert.Equal(t, "18:45:30", tod.String())
	assert.ErrorIs(t, json.Unmarshal([]byte(`"25:00"`), &tod), ErrInvalidTimeFormat)
}
