// Package schedule computes open appointment slots from a weekly working-hours
// rule and the bookings already placed on a day. Everything here is pure: no
// I/O, no caching, a fresh result per call.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for appointment dates.
const DateLayout = "2006-01-02"

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM". Longer strings such as "09:00:00" are
// truncated to their first five characters, matching what SQL TIME columns
// hand back.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if len(s) > 5 {
		s = s[:5]
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("schedule: invalid time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("schedule: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("schedule: invalid minute in %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// MustTime is ParseTimeOfDay for literals; it panics on malformed input.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String formats the time as zero-padded "HH:MM". Values past midnight wrap
// into the hour count (e.g. 24:30) so interval ends stay readable.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns t shifted by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// ParseDate parses a "YYYY-MM-DD" date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: invalid date %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders t's calendar date as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Truncate drops the clock portion of t, keeping its calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Weekday returns the day-of-week index used by schedule rules: 0 = Monday
// through 6 = Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// weekdayShort holds abbreviated day names indexed by Weekday.
var weekdayShort = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// WeekdayLabel returns the short weekday name shown on date buttons.
func WeekdayLabel(t time.Time) string {
	return weekdayShort[Weekday(t)]
}

// UpcomingDates returns n consecutive calendar dates starting at today's date.
func UpcomingDates(today time.Time, n int) []time.Time {
	start := Truncate(today)
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return dates
}

// IsPast reports whether date falls strictly before today's calendar date.
func IsPast(date, today time.Time) bool {
	return Truncate(date).Before(Truncate(today))
}
