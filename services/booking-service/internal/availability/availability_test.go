package availability

import (
	"testing"
	"time"

	"github.com/docslot/docslot/services/booking-service/internal/slots"
)

func TestAvailable_SubtractsBooked(t *testing.T) {
	g := slots.DefaultGrid()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := day.Add(-12 * time.Hour)

	booked := []time.Time{
		day.Add(10*time.Hour + 30*time.Minute),
		day.Add(15 * time.Hour),
	}

	out := Available(g, day, booked, now)
	if len(out) != 20 {
		t.Fatalf("expected 20 slots, got %d", len(out))
	}
	for _, c := range out {
		for _, b := range booked {
			if c.Start.Equal(b) {
				t.Fatalf("booked slot %s still offered", b.Format(time.RFC3339))
			}
		}
	}
}

func TestAvailable_BookedInOtherZone(t *testing.T) {
	g := slots.DefaultGrid()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := day.Add(-12 * time.Hour)

	// Same instant as 10:30 UTC expressed in a fixed +06:00 zone.
	dhaka := time.FixedZone("BST", 6*3600)
	booked := []time.Time{time.Date(2026, 3, 10, 16, 30, 0, 0, dhaka)}

	for _, c := range Available(g, day, booked, now) {
		if c.Start.Equal(booked[0]) {
			t.Fatalf("instant comparison must ignore zone representation")
		}
	}
}

func TestAvailable_EmptyWhenDayFullyBooked(t *testing.T) {
	g := slots.DefaultGrid()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := day.Add(-12 * time.Hour)

	var booked []time.Time
	for _, c := range g.GenerateDay(day, now) {
		booked = append(booked, c.Start)
	}

	if out := Available(g, day, booked, now); len(out) != 0 {
		t.Fatalf("expected no slots, got %d", len(out))
	}
}

func TestAvailableRange_Lookahead(t *testing.T) {
	g := slots.DefaultGrid()
	now := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)

	booked := []time.Time{
		time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}

	out := AvailableRange(g, now, 0, booked, now)
	// Day one is past close; four full lookahead days minus one booked slot.
	if len(out) != 4*22-1 {
		t.Fatalf("expected 87 slots, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i].Start.After(out[i-1].Start) {
			t.Fatalf("slots out of order at %d", i)
		}
	}
}
