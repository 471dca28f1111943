package season

import (
	"fmt"
	"slices"
)

// Cycle bounds the active concert period. Both ends are inclusive.
type Cycle struct {
	From Date
	To   Date
}

// Contains reports whether d falls inside the cycle.
func (c Cycle) Contains(d Date) bool {
	return !d.Before(c.From) && !d.After(c.To)
}

// String formats the cycle as "FROM to TO".
func (c Cycle) String() string {
	return fmt.Sprintf("%s to %s", c.From, c.To)
}

// DetermineCycle finds the concert cycle containing today.
// The first cycle opens on September 1 of the first concert's year; each later
// cycle opens the day after the previous concert.
// PRE: concertDates may be unsorted and may contain duplicates
// POST: Returns the unique cycle with From <= today <= To, or an error
// INVARIANT: concertDates is not mutated
func DetermineCycle(concertDates []Date, today Date) (Cycle, error) {
	if len(concertDates) == 0 {
		return Cycle{}, ErrNoConcerts
	}

	sorted := slices.Clone(concertDates)
	SortDates(sorted)
	sorted = slices.Compact(sorted)

	from := NewDate(sorted[0].Year, SeasonStartMonth, 1)
	for _, to := range sorted {
		c := Cycle{From: from, To: to}
		if c.Contains(today) {
			return c, nil
		}
		from = to.AddDays(1)
	}

	return Cycle{}, fmt.Errorf("%w: %s", ErrNoActiveCycle, today)
}

// Name returns the season label for a date, e.g. "2025-26".
// Seasons roll over in June.
func Name(today Date) string {
	start := today.Year
	if today.Month < 6 {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}
