package slots

import "time"

// Grid is the canonical daily slot template: a fixed window of fixed-length
// intervals. All slot start times in the system must lie on this grid.
type Grid struct {
	DailyStartHour  int
	DailyEndHour    int
	IntervalMinutes int
	LookaheadDays   int
	Location        *time.Location
}

// Candidate is one template slot. Intervals are half-open: [Start, End).
type Candidate struct {
	Start time.Time
	End   time.Time
}

// DefaultGrid is the clinic-wide template: 10:00-21:00 local, 30 minute
// slots, bookable 5 days out. The last slot of a day must END by the close
// hour, so with these values the final start time is 20:30.
func DefaultGrid() Grid {
	return Grid{
		DailyStartHour:  10,
		DailyEndHour:    21,
		IntervalMinutes: 30,
		LookaheadDays:   5,
		Location:        time.UTC,
	}
}

func (g Grid) Interval() time.Duration {
	return time.Duration(g.IntervalMinutes) * time.Minute
}

func (g Grid) location() *time.Location {
	if g.Location != nil {
		return g.Location
	}
	return time.UTC
}

// DayWindow returns the open and close instants of the template window for
// the calendar day containing date.
func (g Grid) DayWindow(date time.Time) (time.Time, time.Time) {
	loc := g.location()
	d := date.In(loc)
	open := time.Date(d.Year(), d.Month(), d.Day(), g.DailyStartHour, 0, 0, 0, loc)
	close := time.Date(d.Year(), d.Month(), d.Day(), g.DailyEndHour, 0, 0, 0, loc)
	return open, close
}

// GenerateDay emits every grid slot for the day containing date whose start
// is strictly after now. Pure and deterministic; callers subtract booked
// slots separately.
func (g Grid) GenerateDay(date time.Time, now time.Time) []Candidate {
	if g.IntervalMinutes <= 0 {
		return nil
	}
	open, close := g.DayWindow(date)
	interval := g.Interval()

	var out []Candidate
	for t := open; !t.Add(interval).After(close); t = t.Add(interval) {
		if !t.After(now) {
			continue
		}
		out = append(out, Candidate{Start: t, End: t.Add(interval)})
	}
	return out
}

// Generate emits the template for days consecutive days starting at the day
// containing from. days values <= 0 fall back to LookaheadDays.
func (g Grid) Generate(from time.Time, days int, now time.Time) []Candidate {
	if days <= 0 {
		days = g.LookaheadDays
	}
	var out []Candidate
	for offset := 0; offset < days; offset++ {
		out = append(out, g.GenerateDay(from.AddDate(0, 0, offset), now)...)
	}
	return out
}

// Aligned reports whether t is a valid slot start: on the interval grid,
// within the daily window, with room for a whole slot before close.
func (g Grid) Aligned(t time.Time) bool {
	if g.IntervalMinutes <= 0 {
		return false
	}
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	open, close := g.DayWindow(t)
	if t.Before(open) {
		return false
	}
	if t.Add(g.Interval()).After(close) {
		return false
	}
	return t.Sub(open)%g.Interval() == 0
}
