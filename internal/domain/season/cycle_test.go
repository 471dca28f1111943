package season

import (
	"errors"
	"testing"
	"time"
)

// TestDetermineCycle_FindsContainingCycle verifies cycle boundaries walk concert dates.
// PRE: three concerts in a season
// POST: each date maps to the cycle ending at the next concert
func TestDetermineCycle_FindsContainingCycle(t *testing.T) {
	concerts := []Date{
		NewDate(2026, time.March, 14),
		NewDate(2025, time.December, 6),
		NewDate(2026, time.May, 30),
	}

	tests := []struct {
		name  string
		today Date
		want  Cycle
	}{
		{"season opening", NewDate(2025, time.September, 1), Cycle{NewDate(2025, time.September, 1), NewDate(2025, time.December, 6)}},
		{"concert day", NewDate(2025, time.December, 6), Cycle{NewDate(2025, time.September, 1), NewDate(2025, time.December, 6)}},
		{"day after concert", NewDate(2025, time.December, 7), Cycle{NewDate(2025, time.December, 7), NewDate(2026, time.March, 14)}},
		{"last cycle", NewDate(2026, time.April, 2), Cycle{NewDate(2026, time.March, 15), NewDate(2026, time.May, 30)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetermineCycle(concerts, tt.today)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("cycle=%v want %v", got, tt.want)
			}
		})
	}
}

// TestDetermineCycle_Errors verifies the two "no cycle" failures.
func TestDetermineCycle_Errors(t *testing.T) {
	if _, err := DetermineCycle(nil, NewDate(2025, time.October, 1)); !errors.Is(err, ErrNoConcerts) {
		t.Errorf("err=%v want ErrNoConcerts", err)
	}

	concerts := []Date{NewDate(2025, time.December, 6)}
	if _, err := DetermineCycle(concerts, NewDate(2025, time.August, 31)); !errors.Is(err, ErrNoActiveCycle) {
		t.Errorf("before season: err=%v want ErrNoActiveCycle", err)
	}
	if _, err := DetermineCycle(concerts, NewDate(2025, time.December, 7)); !errors.Is(err, ErrNoActiveCycle) {
		t.Errorf("after season: err=%v want ErrNoActiveCycle", err)
	}
}

// TestName_RollsOverInJune verifies season labels.
func TestName_RollsOverInJune(t *testing.T) {
	tests := []struct {
		today Date
		want  string
	}{
		{NewDate(2025, time.October, 17), "2025-26"},
		{NewDate(2026, time.May, 31), "2025-26"},
		{NewDate(2026, time.June, 1), "2026-27"},
		{NewDate(2099, time.September, 1), "2099-00"},
	}
	for _, tt := range tests {
		if got := Name(tt.today); got != tt.want {
			t.Errorf("Name(%s)=%q want %q", tt.today, got, tt.want)
		}
	}
}

// TestParseDate_WrapsErrBadDate verifies parse failures are data errors.
func TestParseDate_WrapsErrBadDate(t *testing.T) {
	d, err := ParseDate("01-02-2006", "10-16-2025")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != NewDate(2025, time.October, 16) {
		t.Errorf("date=%v", d)
	}
	if _, err := ParseDate("01-02-2006", "Name"); !errors.Is(err, ErrBadDate) {
		t.Errorf("err=%v want ErrBadDate", err)
	}
}

// TestDate_Ordering verifies Compare, Before and After agree.
func TestDate_Ordering(t *testing.T) {
	a := NewDate(2025, time.December, 31)
	b := NewDate(2026, time.January, 1)
	if !a.Before(b) || b.Before(a) || !b.After(a) {
		t.Error("ordering mismatch across year boundary")
	}
	if a.AddDays(1) != b {
		t.Errorf("AddDays=%v want %v", a.AddDays(1), b)
	}
	if b.Weekday() != time.Thursday {
		t.Errorf("weekday=%v want Thursday", b.Weekday())
	}
	if a.String() != "2025-12-31" {
		t.Errorf("String=%q", a.String())
	}
}
