package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(s string) *TimeOfDay {
	t := MustTime(s)
	return &t
}

func mondayRule() Rule {
	return Rule{DayOfWeek: 0, Start: tod("09:00"), End: tod("18:00"), Working: true}
}

func times(ts []TimeOfDay) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "09:00"},
		{in: "9:05", want: "09:05"},
		{in: "23:59", want: "23:59"},
		{in: "10:30:00", want: "10:30"},
		{in: " 08:15 ", want: "08:15"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	base := NewInterval(MustTime("10:00"), 60)

	assert.False(t, Overlaps(NewInterval(MustTime("09:00"), 60), base), "ends exactly at start")
	assert.False(t, Overlaps(NewInterval(MustTime("11:00"), 30), base), "starts exactly at end")
	assert.True(t, Overlaps(NewInterval(MustTime("10:30"), 15), base), "contained")
	assert.True(t, Overlaps(NewInterval(MustTime("09:30"), 120), base), "containing")
	assert.True(t, Overlaps(NewInterval(MustTime("09:45"), 30), base), "straddles start")
	assert.True(t, Overlaps(base, base), "identical")
}

func TestAvailableSlots_MondayScenario(t *testing.T) {
	existing := []Booked{{ID: 1, Start: MustTime("10:00"), Duration: 60}}

	got := times(AvailableSlots(mondayRule(), existing, 30, 30))

	assert.Contains(t, got, "09:00")
	assert.Contains(t, got, "09:30")
	assert.NotContains(t, got, "10:00")
	assert.NotContains(t, got, "10:30")
	assert.Contains(t, got, "11:00")
	assert.Equal(t, "09:00", got[0])
	assert.Equal(t, "17:30", got[len(got)-1])
	// 18 half-hour candidates minus the two covered by the booking.
	assert.Len(t, got, 16)
}

func TestAvailableSlots_NonWorkingDay(t *testing.T) {
	rule := mondayRule()
	rule.Working = false
	assert.Empty(t, AvailableSlots(rule, nil, 30, 30))

	missing := Rule{DayOfWeek: 2, Working: true, Start: tod("09:00")}
	assert.Empty(t, AvailableSlots(missing, nil, 30, 30))
}

func TestAvailableSlots_StepWithinBounds(t *testing.T) {
	rule := Rule{Start: tod("09:00"), End: tod("11:00"), Working: true}
	got := times(AvailableSlots(rule, nil, 45, 30))
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, got)

	got = times(AvailableSlots(rule, nil, 30, 0))
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, got, "zero step falls back to default")

	got = times(AvailableSlots(rule, nil, 30, 40))
	assert.Equal(t, []string{"09:00", "09:40", "10:20"}, got)
}

func TestAvailableSlots_EndPastClosingStillOffered(t *testing.T) {
	rule := Rule{Start: tod("17:00"), End: tod("18:00"), Working: true}
	got := times(AvailableSlots(rule, nil, 120, 30))
	assert.Equal(t, []string{"17:00", "17:30"}, got)
}

func TestAvailableSlots_AdjacentBookingsAreFree(t *testing.T) {
	existing := []Booked{
		{ID: 1, Start: MustTime("09:00"), Duration: 30},
		{ID: 2, Start: MustTime("10:00"), Duration: 30},
	}
	rule := Rule{Start: tod("09:00"), End: tod("11:00"), Working: true}

	got := times(AvailableSlots(rule, existing, 30, 30))
	assert.Equal(t, []string{"09:30", "10:30"}, got)
}

func TestAvailableSlots_LongServiceBlockedByLaterBooking(t *testing.T) {
	existing := []Booked{{ID: 1, Start: MustTime("10:00"), Duration: 30}}
	rule := Rule{Start: tod("09:00"), End: tod("11:00"), Working: true}

	got := times(AvailableSlots(rule, existing, 90, 30))
	// 09:00-10:30 and 09:30-11:00 both cover 10:00.
	assert.Equal(t, []string{"10:30"}, got)
}

func TestAvailableSlots_Idempotent(t *testing.T) {
	existing := []Booked{{ID: 1, Start: MustTime("12:00"), Duration: 45}}
	a := AvailableSlots(mondayRule(), existing, 60, 30)
	b := AvailableSlots(mondayRule(), existing, 60, 30)
	assert.Equal(t, a, b)

	a[0] = MustTime("00:00")
	c := AvailableSlots(mondayRule(), existing, 60, 30)
	assert.Equal(t, b, c, "results must not share backing storage")
}

func TestAvailableSlots_CancellationFreesSlot(t *testing.T) {
	existing := []Booked{{ID: 7, Start: MustTime("14:00"), Duration: 60}}
	before := times(AvailableSlots(mondayRule(), existing, 60, 30))
	assert.NotContains(t, before, "14:00")

	after := times(AvailableSlots(mondayRule(), nil, 60, 30))
	assert.Contains(t, after, "14:00")
}

func TestConflicts(t *testing.T) {
	existing := []Booked{
		{ID: 1, Start: MustTime("09:00"), Duration: 60},
		{ID: 2, Start: MustTime("11:00"), Duration: 60},
	}
	got := Conflicts(NewInterval(MustTime("09:30"), 120), existing)
	require.Len(t, got, 2)

	got = Conflicts(NewInterval(MustTime("10:00"), 60), existing)
	assert.Empty(t, got)
}

func TestWeekday_MondayIsZero(t *testing.T) {
	// 2026-10-12 is a Monday.
	mon := time.Date(2026, 10, 12, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Weekday(mon))
	assert.Equal(t, "Пн", WeekdayLabel(mon))
	assert.Equal(t, 6, Weekday(mon.AddDate(0, 0, 6)))
}

func TestUpcomingDates(t *testing.T) {
	today := time.Date(2026, 10, 16, 21, 30, 0, 0, time.UTC)
	dates := UpcomingDates(today, 14)
	require.Len(t, dates, 14)
	assert.Equal(t, "2026-10-16", FormatDate(dates[0]))
	assert.Equal(t, "2026-10-29", FormatDate(dates[13]))
}

func TestIsPast(t *testing.T) {
	today := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	yesterday, _ := ParseDate("2026-10-15")
	sameDay, _ := ParseDate("2026-10-16")

	assert.True(t, IsPast(yesterday, today))
	assert.False(t, IsPast(sameDay, today))
}
