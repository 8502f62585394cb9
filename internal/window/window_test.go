package window

import (
	"testing"
	"time"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load %s: %v", name, err)
	}
	return loc
}

func TestRollingWindowBoundaries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.July, 4, 9, 0, 0, 0, time.UTC)
	w := Rolling{Width: 10 * time.Minute}.Window(now)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "equal to now", at: now, want: true},
		{name: "five minutes ahead", at: now.Add(5 * time.Minute), want: true},
		{name: "equal to end", at: now.Add(10 * time.Minute), want: false},
		{name: "just before now", at: now.Add(-time.Second), want: false},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.at); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRollingWindowIsUTC(t *testing.T) {
	t.Parallel()

	loc := mustLocation(t, "Africa/Johannesburg")
	now := time.Date(2025, time.July, 4, 11, 0, 0, 0, loc)
	w := Rolling{Lead: time.Minute, Width: 10 * time.Minute}.Window(now)
	if w.Start.Location() != time.UTC {
		t.Fatalf("expected UTC start, got %v", w.Start.Location())
	}
	if !w.Start.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected start %v", w.Start)
	}
}

func TestRollingValidate(t *testing.T) {
	t.Parallel()

	if err := (Rolling{Width: 2 * time.Minute}).Validate(2 * time.Minute); err == nil {
		t.Fatalf("width equal to cadence must be rejected")
	}
	if err := (Rolling{Width: 10 * time.Minute}).Validate(2 * time.Minute); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := (Rolling{}).Validate(0); err == nil {
		t.Fatalf("zero width must be rejected")
	}
}

func TestDailyBoundaryAcrossDaylightSaving(t *testing.T) {
	t.Parallel()

	berlin := mustLocation(t, "Europe/Berlin")
	daily := Daily{Location: berlin, Hour: 19, LookbackDays: 1}

	// Clocks move forward on 2025-03-30 at 02:00 local.
	before := daily.Boundary(time.Date(2025, time.March, 29, 19, 0, 0, 0, berlin))
	after := daily.Boundary(time.Date(2025, time.March, 30, 19, 0, 30, 0, berlin))

	if want := time.Date(2025, time.March, 29, 18, 0, 0, 0, time.UTC); !before.Equal(want) {
		t.Fatalf("expected %v before the change, got %v", want, before)
	}
	if want := time.Date(2025, time.March, 30, 17, 0, 0, 0, time.UTC); !after.Equal(want) {
		t.Fatalf("expected %v after the change, got %v", want, after)
	}
	if local := after.In(berlin); local.Hour() != 19 || local.Minute() != 0 {
		t.Fatalf("boundary drifted from wall clock: %v", local)
	}

	w := daily.Window(time.Date(2025, time.March, 30, 20, 0, 0, 0, berlin))
	if !w.Start.Equal(before) || !w.End.Equal(after) {
		t.Fatalf("unexpected window %s", w)
	}
	if got := w.End.Sub(w.Start); got != 23*time.Hour {
		t.Fatalf("expected a 23h local day, got %v", got)
	}
}

func TestDailyBoundaryBeforeCutoverUsesPreviousDay(t *testing.T) {
	t.Parallel()

	jhb := mustLocation(t, "Africa/Johannesburg")
	daily := Daily{Location: jhb}
	now := time.Date(2025, time.June, 10, 0, 0, 5, 0, jhb)

	boundary := daily.Boundary(now)
	if want := time.Date(2025, time.June, 9, 22, 0, 0, 0, time.UTC); !boundary.Equal(want) {
		t.Fatalf("expected %v, got %v", want, boundary)
	}

	w := daily.Window(now)
	if !w.Start.IsZero() {
		t.Fatalf("zero lookback should leave the window unbounded below, got %v", w.Start)
	}
	if !w.Contains(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unbounded window should contain old instants")
	}
	if w.Contains(boundary) {
		t.Fatalf("window end must be exclusive")
	}

	late := daily.Boundary(time.Date(2025, time.June, 9, 23, 59, 0, 0, jhb))
	if want := time.Date(2025, time.June, 8, 22, 0, 0, 0, time.UTC); !late.Equal(want) {
		t.Fatalf("expected previous midnight %v, got %v", want, late)
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	hour, minute, err := ParseClock("19:30")
	if err != nil || hour != 19 || minute != 30 {
		t.Fatalf("unexpected parse result %d:%d %v", hour, minute, err)
	}
	if _, _, err := ParseClock("7pm"); err == nil {
		t.Fatalf("expected invalid clock to fail")
	}
}
