package slots

import (
	"testing"
	"time"
)

func TestGenerateDay_FullDay(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	out := g.GenerateDay(day, now)
	// 10:00 through 20:30 inclusive at 30 minute steps.
	if len(out) != 22 {
		t.Fatalf("expected 22 slots, got %d", len(out))
	}
	if !out[0].Start.Equal(day.Add(10 * time.Hour)) {
		t.Fatalf("expected first slot 10:00, got %s", out[0].Start.Format(time.RFC3339))
	}
	last := out[len(out)-1]
	if !last.Start.Equal(day.Add(20*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last start 20:30, got %s", last.Start.Format(time.RFC3339))
	}
	if !last.End.Equal(day.Add(21 * time.Hour)) {
		t.Fatalf("expected last end 21:00, got %s", last.End.Format(time.RFC3339))
	}
}

func TestGenerateDay_SkipsPast(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	// Mid-slot: 10:00 and 10:30 are not strictly in the future.
	now := day.Add(10*time.Hour + 30*time.Minute)

	out := g.GenerateDay(day, now)
	if len(out) != 21 {
		t.Fatalf("expected 21 slots, got %d", len(out))
	}
	if !out[0].Start.Equal(day.Add(11 * time.Hour)) {
		t.Fatalf("expected first slot 11:00, got %s", out[0].Start.Format(time.RFC3339))
	}
}

func TestGenerate_Lookahead(t *testing.T) {
	g := DefaultGrid()
	now := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)

	out := g.Generate(now, 0, now)
	if len(out) != 4*22 {
		// Day one is already past close; the remaining 4 lookahead days are full.
		t.Fatalf("expected 88 slots, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i].Start.After(out[i-1].Start) {
			t.Fatalf("slots out of order at %d", i)
		}
	}
}

func TestAligned(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"window open", day.Add(10 * time.Hour), true},
		{"mid grid", day.Add(14*time.Hour + 30*time.Minute), true},
		{"last start", day.Add(20*time.Hour + 30*time.Minute), true},
		{"at close", day.Add(21 * time.Hour), false},
		{"would cross close", day.Add(20*time.Hour + 45*time.Minute), false},
		{"before open", day.Add(9*time.Hour + 30*time.Minute), false},
		{"off grid", day.Add(10*time.Hour + 15*time.Minute), false},
		{"sub-minute", day.Add(10*time.Hour + 30*time.Second), false},
	}
	for _, tc := range cases {
		if got := g.Aligned(tc.t); got != tc.want {
			t.Errorf("%s: Aligned(%s) = %v, want %v", tc.name, tc.t.Format(time.RFC3339), got, tc.want)
		}
	}
}
