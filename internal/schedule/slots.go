package schedule

// DefaultStep is the spacing between candidate slot start times, in minutes.
const DefaultStep = 30

// Rule is one day of a weekly calendar. Start and End are nil when the day
// has no configured hours.
type Rule struct {
	DayOfWeek int
	Start     *TimeOfDay
	End       *TimeOfDay
	Working   bool
}

// Interval is a half-open range [Start, End) of wall-clock minutes.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval builds the interval occupied by a booking of duration minutes
// starting at start.
func NewInterval(start TimeOfDay, duration int) Interval {
	return Interval{Start: start, End: start.Add(duration)}
}

// Overlaps reports whether two half-open intervals share at least one
// instant. Touching intervals (one ends exactly when the other starts) do not
// overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// Booked is an existing appointment on the queried day. Only confirmed
// appointments should be passed in; callers filter cancelled and completed
// ones out.
type Booked struct {
	ID       uint
	Start    TimeOfDay
	Duration int
}

// Interval returns the time range the booking occupies.
func (b Booked) Interval() Interval {
	return NewInterval(b.Start, b.Duration)
}

// Conflicts returns the bookings whose interval overlaps candidate.
func Conflicts(candidate Interval, existing []Booked) []Booked {
	var out []Booked
	for _, b := range existing {
		if Overlaps(candidate, b.Interval()) {
			out = append(out, b)
		}
	}
	return out
}

// Candidates returns every slot start time the rule generates, ignoring
// bookings: from the rule's start, stepping by step minutes, while strictly
// before the rule's end. A step <= 0 falls back to DefaultStep.
func Candidates(rule Rule, step int) []TimeOfDay {
	if !rule.Working || rule.Start == nil || rule.End == nil {
		return nil
	}
	if step <= 0 {
		step = DefaultStep
	}
	var out []TimeOfDay
	for t := *rule.Start; t < *rule.End; t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// AvailableSlots returns the ordered start times on which a service of
// duration minutes can be booked. A candidate is dropped only when its
// interval overlaps an existing booking; the closing time bounds candidate
// generation but a slot whose end runs past closing is still offered.
//
// duration must be positive; validation happens before this is called.
func AvailableSlots(rule Rule, existing []Booked, duration, step int) []TimeOfDay {
	candidates := Candidates(rule, step)
	if len(candidates) == 0 {
		return nil
	}
	free := make([]TimeOfDay, 0, len(candidates))
	for _, c := range candidates {
		if len(Conflicts(NewInterval(c, duration), existing)) > 0 {
			continue
		}
		free = append(free, c)
	}
	return free
}

// IsAvailable reports whether a booking at start for duration minutes is
// free of conflicts with existing bookings.
func IsAvailable(start TimeOfDay, duration int, existing []Booked) bool {
	return len(Conflicts(NewInterval(start, duration), existing)) == 0
}
