package timewindow

import (
	"errors"
	"testing"
	"time"
)

func TestDailyWindowUnderFixedOffset(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	offset := 360 // UTC+6

	w, err := Resolve(Daily, "", "", offset, now)
	if err != nil {
		t.Fatalf("resolve daily: %v", err)
	}

	shift := time.Duration(offset) * time.Minute
	localStart := w.Start.Add(shift)
	localEnd := w.End.Add(shift)

	wantStart := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 3, 15, 23, 59, 59, 999000000, time.UTC)
	if !localStart.Equal(wantStart) {
		t.Fatalf("local start = %s, want %s", localStart, wantStart)
	}
	if !localEnd.Equal(wantEnd) {
		t.Fatalf("local end = %s, want %s", localEnd, wantEnd)
	}

	// Round trip: a record at local 23:59:59.999 must be inside the window.
	lastLocal := wantEnd.Add(-shift)
	if !w.Contains(lastLocal) {
		t.Fatalf("window should contain local end of day")
	}
	if w.Contains(lastLocal.Add(time.Millisecond)) {
		t.Fatalf("window should not contain the next local day")
	}
}

func TestDailyCrossesUTCDateLine(t *testing.T) {
	// Local date is already March 16 at UTC+6 even though UTC is March 15.
	now := time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC)

	w, err := Resolve(Daily, "", "", 360, now)
	if err != nil {
		t.Fatalf("resolve daily: %v", err)
	}
	wantStart := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) // local Mar 16 00:00
	if !w.Start.Equal(wantStart) {
		t.Fatalf("start = %s, want %s", w.Start, wantStart)
	}
}

func TestWeeklyIsTrailingSevenDays(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	w, err := Resolve(Weekly, "", "", 0, now)
	if err != nil {
		t.Fatalf("resolve weekly: %v", err)
	}
	wantStart := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 3, 15, 23, 59, 59, 999000000, time.UTC)
	if !w.Start.Equal(wantStart) || !w.End.Equal(wantEnd) {
		t.Fatalf("weekly window = [%s, %s], want [%s, %s]", w.Start, w.End, wantStart, wantEnd)
	}
}

func TestMonthlyAndYearlyCalendarBoundaries(t *testing.T) {
	now := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

	m, err := Resolve(Monthly, "", "", 0, now)
	if err != nil {
		t.Fatalf("resolve monthly: %v", err)
	}
	if !m.Start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("monthly start = %s", m.Start)
	}
	// 2024 is a leap year.
	if !m.End.Equal(time.Date(2024, 2, 29, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("monthly end = %s", m.End)
	}

	y, err := Resolve(Yearly, "", "", 0, now)
	if err != nil {
		t.Fatalf("resolve yearly: %v", err)
	}
	if !y.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("yearly start = %s", y.Start)
	}
	if !y.End.Equal(time.Date(2024, 12, 31, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("yearly end = %s", y.End)
	}
}

func TestCustomRangeIsNotOffsetShifted(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	w, err := Resolve(Custom, "2024-01-01", "2024-01-31", 360, now)
	if err != nil {
		t.Fatalf("resolve custom: %v", err)
	}
	if !w.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("custom start = %s, should ignore offset", w.Start)
	}
	if !w.End.Equal(time.Date(2024, 1, 31, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("custom end = %s, should ignore offset", w.End)
	}
}

func TestCustomMissingBoundsMeansAllTime(t *testing.T) {
	w, err := Resolve(Custom, "2024-01-01", "", 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("resolve custom: %v", err)
	}
	if !w.IsAllTime() {
		t.Fatalf("expected all-time window when an explicit bound is missing")
	}
}

func TestInvalidRange(t *testing.T) {
	_, err := Resolve(Custom, "2024-02-01", "2024-01-01", 0, time.Now().UTC())
	var rangeErr *InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	for _, valid := range []string{"", "daily", "weekly", "monthly", "yearly", "custom"} {
		if _, err := ParseKind(valid); err != nil {
			t.Fatalf("ParseKind(%q) unexpected error: %v", valid, err)
		}
	}
	if _, err := ParseKind("fortnightly"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestUnparsableCustomDate(t *testing.T) {
	if _, err := Resolve(Custom, "01/02/2024", "2024-03-01", 0, time.Now().UTC()); err == nil {
		t.Fatalf("expected parse error for non ISO date")
	}
}
