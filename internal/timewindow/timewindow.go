// Package timewindow converts named report filters into concrete UTC date
// ranges. Named presets (daily, weekly, monthly, yearly) are computed against
// "now" shifted by a fixed UTC offset and then converted back to UTC for
// querying. Custom ranges are a deliberate exception: the caller's literal
// start/end dates are taken as already expressed in the intended query
// timezone and are NOT offset-shifted. That asymmetry is part of the
// contract, not an oversight.
package timewindow

import (
	"fmt"
	"time"
)

type Kind string

const (
	None    Kind = ""
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
	Custom  Kind = "custom"
)

// ParseKind validates a filter string from the boundary. The empty string
// means no bound (all-time).
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case None, Daily, Weekly, Monthly, Yearly, Custom:
		return Kind(s), nil
	}
	return None, fmt.Errorf("unknown filter kind %q", s)
}

// Window is a concrete date range. Both bounds are inclusive: End always
// carries the .999 millisecond of the last local day, so querying with
// createdAt >= Start AND createdAt <= End captures every record from local
// midnight through 23:59:59.999. The zero Window means all-time.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) IsAllTime() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w Window) Contains(t time.Time) bool {
	if w.IsAllTime() {
		return true
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

const endOfDay = 24*time.Hour - time.Millisecond

// Resolve turns a filter kind plus an optional explicit range into a Window.
// offsetMinutes is the fixed UTC offset of the pharmacy's local time (e.g.
// 360 for UTC+6); now is the reference instant, normally time.Now().UTC().
//
// Weekly is a rolling 7-day trailing window ending at local end-of-day now,
// not a calendar week. Monthly and yearly snap to calendar boundaries.
func Resolve(kind Kind, start, end string, offsetMinutes int, now time.Time) (Window, error) {
	offset := time.Duration(offsetMinutes) * time.Minute
	local := now.UTC().Add(offset)

	var from, to time.Time
	switch kind {
	case None:
		return Window{}, nil
	case Daily:
		from = startOfDay(local)
		to = from.Add(endOfDay)
	case Weekly:
		from = startOfDay(local.AddDate(0, 0, -7))
		to = startOfDay(local).Add(endOfDay)
	case Monthly:
		from = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0).Add(-time.Millisecond)
	case Yearly:
		from = time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(1, 0, 0).Add(-time.Millisecond)
	case Custom:
		if start == "" || end == "" {
			return Window{}, nil
		}
		s, err := parseDate(start)
		if err != nil {
			return Window{}, fmt.Errorf("parse start: %w", err)
		}
		e, err := parseDate(end)
		if err != nil {
			return Window{}, fmt.Errorf("parse end: %w", err)
		}
		from = startOfDay(s)
		to = startOfDay(e).Add(endOfDay)
		if from.After(to) {
			return Window{}, &InvalidRangeError{Start: from, End: to}
		}
		// Custom bounds stay as given; no offset shift.
		return Window{Start: from, End: to}, nil
	default:
		return Window{}, fmt.Errorf("unknown filter kind %q", kind)
	}

	if from.After(to) {
		return Window{}, &InvalidRangeError{Start: from, End: to}
	}

	// Presets were computed in local time; shift back to UTC for querying.
	return Window{Start: from.Add(-offset), End: to.Add(-offset)}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
