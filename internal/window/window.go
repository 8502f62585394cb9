// Package window computes the half-open time windows that select records for
// one job invocation and scans the document store with them.
package window

import (
	"errors"
	"fmt"
	"time"
)

// Window is the interval [Start, End) in UTC. A zero Start is unbounded below.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	return t.Before(w.End)
}

// String renders the window for logs.
func (w Window) String() string {
	start := "-inf"
	if !w.Start.IsZero() {
		start = w.Start.Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s, %s)", start, w.End.Format(time.RFC3339))
}

// Spec computes a window from the invocation instant.
type Spec interface {
	Window(now time.Time) Window
}

// Rolling selects [now+Lead, now+Lead+Width).
type Rolling struct {
	Lead  time.Duration
	Width time.Duration
}

// Window implements Spec.
func (r Rolling) Window(now time.Time) Window {
	start := now.UTC().Add(r.Lead)
	return Window{Start: start, End: start.Add(r.Width)}
}

// Validate checks that the window covers more than one scheduling cadence so a
// missed cycle cannot drop eligible records.
func (r Rolling) Validate(cadence time.Duration) error {
	if r.Width <= 0 {
		return errors.New("window: width must be positive")
	}
	if cadence > 0 && r.Width <= cadence {
		return fmt.Errorf("window: width %s must exceed cadence %s", r.Width, cadence)
	}
	return nil
}

// Daily resolves a fixed wall-clock cutover in Location. The boundary is the
// latest cutover at or before now; the window ends there and reaches back
// LookbackDays local days, or is unbounded below when LookbackDays is zero.
type Daily struct {
	Location     *time.Location
	Hour         int
	Minute       int
	LookbackDays int
}

// Boundary returns the latest cutover instant at or before now. Calendar
// arithmetic happens on local dates, so the same wall clock is used on both
// sides of a daylight-saving change.
func (d Daily) Boundary(now time.Time) time.Time {
	loc := d.location()
	local := now.In(loc)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if boundary.After(now) {
		boundary = time.Date(local.Year(), local.Month(), local.Day()-1, d.Hour, d.Minute, 0, 0, loc)
	}
	return boundary.UTC()
}

// Window implements Spec.
func (d Daily) Window(now time.Time) Window {
	end := d.Boundary(now)
	w := Window{End: end}
	if d.LookbackDays > 0 {
		local := end.In(d.location())
		w.Start = time.Date(local.Year(), local.Month(), local.Day()-d.LookbackDays, d.Hour, d.Minute, 0, 0, d.location()).UTC()
	}
	return w
}

func (d Daily) location() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("window: invalid wall clock %q: %w", value, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
