package projections

import (
	"errors"
	"strings"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/season"
)

// ErrNoUpcomingRehearsal is returned when the projected sheet has no date on or after today.
var ErrNoUpcomingRehearsal = errors.New("no upcoming rehearsal in the projected sheet")

// NextRehearsalFrom returns the earliest projected date on or after today.
// PRE: sheet Dates are sorted
// POST: returns ErrNoUpcomingRehearsal when none exists
func NextRehearsalFrom(sheet attendance.Sheet, today season.Date) (season.Date, error) {
	dates := sheet.DatesFrom(today)
	if len(dates) == 0 {
		return season.Date{}, ErrNoUpcomingRehearsal
	}
	return dates[0], nil
}

// ProjectedRow is a singing row with its plan for one rehearsal.
type ProjectedRow struct {
	*Row

	Confirmed    bool
	MarkedAbsent bool
	NotMarked    bool
}

// ProjectedSet is the classified table for the next-rehearsal report.
type ProjectedSet struct {
	Rehearsal season.Date
	Rows      []*ProjectedRow // singing rows only
	Absences  ProjectedAbsences
}

// ClassifyProjected classifies the singing rows by their projected mark on rehearsal.
// PRE: t was built with the projected sheet joined and has been filled
// POST: exactly one of Confirmed, MarkedAbsent, NotMarked holds per row
func ClassifyProjected(t *Table, cycle season.Cycle, rehearsal season.Date) ProjectedSet {
	singing := Filter(t.Rows, func(r *Row) bool { return r.Entry.Status(cycle.To).Singing() })

	set := ProjectedSet{Rehearsal: rehearsal, Rows: make([]*ProjectedRow, 0, len(singing))}
	for _, r := range singing {
		m := r.Projected.Mark(rehearsal)
		set.Rows = append(set.Rows, &ProjectedRow{
			Row:          r,
			Confirmed:    m == attendance.Present,
			MarkedAbsent: m == attendance.Absent,
			NotMarked:    m == attendance.Unmarked,
		})
	}
	set.Absences = ProjectedAbsencesFor(singing, rehearsal)
	return set
}

// Nag is one singing singer with projected dates still unanswered.
type Nag struct {
	Row      *Row
	Unmarked []season.Date
}

// FirstName is the greeting name: the first word of the singer's name.
func (n Nag) FirstName() string {
	fields := strings.Fields(n.Row.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// UnmarkedDates lists singing singers with at least one unmarked projected date.
// A singer missing from the projected sheet has every date unmarked.
// PRE: t was built with the projected sheet joined and has been filled
// POST: Unmarked is sorted and non-empty for each Nag
func UnmarkedDates(t *Table, cycle season.Cycle, projected attendance.Sheet) []Nag {
	var nags []Nag
	for _, r := range t.Rows {
		if !r.Entry.Status(cycle.To).Singing() {
			continue
		}
		var dates []season.Date
		for _, d := range projected.Dates {
			if r.Projected.Mark(d) == attendance.Unmarked {
				dates = append(dates, d)
			}
		}
		if len(dates) > 0 {
			season.SortDates(dates)
			nags = append(nags, Nag{Row: r, Unmarked: dates})
		}
	}
	return nags
}
