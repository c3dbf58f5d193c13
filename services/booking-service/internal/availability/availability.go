package availability

import (
	"time"

	"github.com/docslot/docslot/services/booking-service/internal/slots"
)

// Available returns the bookable template slots for the day containing date:
// the grid candidates whose start is strictly after now and does not collide
// with any booked start time.
//
// This result is advisory only. It is computed from a point-in-time read and
// can be stale by the time a booking lands; the booking transactor's unique
// constraint is the actual double-booking guarantee.
func Available(g slots.Grid, date time.Time, booked []time.Time, now time.Time) []slots.Candidate {
	taken := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		taken[b.Unix()] = struct{}{}
	}

	candidates := g.GenerateDay(date, now)
	out := make([]slots.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c.Start.Unix()]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AvailableRange is Available over days consecutive days starting at the day
// containing from. days values <= 0 fall back to the grid's lookahead.
func AvailableRange(g slots.Grid, from time.Time, days int, booked []time.Time, now time.Time) []slots.Candidate {
	if days <= 0 {
		days = g.LookaheadDays
	}
	var out []slots.Candidate
	for offset := 0; offset < days; offset++ {
		out = append(out, Available(g, from.AddDate(0, 0, offset), booked, now)...)
	}
	return out
}
