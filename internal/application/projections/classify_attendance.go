package projections

import (
	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/season"
)

// Absence thresholds used by the attendance report.
const (
	AbsenceLimit = 3

	ExcusedMarked   = "Marked in CG"
	ExcusedUnmarked = "Unexcused?"
)

// AttendanceWindow fixes the dates an attendance classification looks at.
type AttendanceWindow struct {
	Cycle    season.Cycle
	Concerts []season.Date // every concert column on the roster
	Past     []season.Date // rehearsals already held this cycle (actual sheet columns)
	Future   []season.Date // projected rehearsals after MostRecent

	MostRecent    season.Date
	HasMostRecent bool
}

// NewAttendanceWindow derives past and future rehearsals from the two sheets.
// When no rehearsal has been held yet, every projected column is in the future.
// PRE: both sheets have sorted Dates
// POST: Future is strictly after MostRecent when HasMostRecent
func NewAttendanceWindow(cycle season.Cycle, concerts []season.Date, actual, projected attendance.Sheet) AttendanceWindow {
	w := AttendanceWindow{Cycle: cycle, Concerts: concerts, Past: actual.Dates}
	if d, ok := actual.Latest(); ok {
		w.MostRecent, w.HasMostRecent = d, true
		w.Future = projected.DatesAfter(d)
	} else {
		w.Future = append([]season.Date(nil), projected.Dates...)
	}
	return w
}

// FirstRehearsal returns the earliest rehearsal in the window.
func (w AttendanceWindow) FirstRehearsal() (season.Date, bool) {
	if len(w.Past) > 0 {
		return w.Past[0], true
	}
	if len(w.Future) > 0 {
		return w.Future[0], true
	}
	return season.Date{}, false
}

// NextRehearsal returns the earliest future rehearsal.
func (w AttendanceWindow) NextRehearsal() (season.Date, bool) {
	if len(w.Future) == 0 {
		return season.Date{}, false
	}
	return w.Future[0], true
}

// RemainingRehearsals is the number of future rehearsals in the window.
func (w AttendanceWindow) RemainingRehearsals() int {
	return len(w.Future)
}

// AttendanceRow is a joined row with its attendance classification.
type AttendanceRow struct {
	*Row

	SingingThisCycle bool
	MaybeThisCycle   bool
	OtherCyclesYes   bool
	OtherCyclesMaybe bool
	Gone             bool
	ActiveEmails     bool

	Attended           int
	AttendedAtLeastOne bool

	AbsencesActual    int
	AbsencesProjected int
	AbsencesTotal     int
	// AbsencesKnown is false unless the singer is on both sheets; the counts
	// are then meaningless and the row is never flagged for absences.
	AbsencesKnown    bool
	RelevantAbsences bool

	PresentTonight bool
	AbsentTonight  bool
	Excused        string
}

// AttendanceSet is the classified table for one attendance report.
type AttendanceSet struct {
	Window     AttendanceWindow
	Rows       []*AttendanceRow
	Collisions []Collision
}

// ClassifyAttendance computes the per-singer flags used by the attendance report.
// PRE: t was built with the projected and actual sheets joined and has been filled
// POST: Rows are in table order; the on-roster rows split exactly into
// SingingThisCycle, OtherCyclesYes, OtherCyclesMaybe and Gone
func ClassifyAttendance(t *Table, w AttendanceWindow) AttendanceSet {
	others := make([]season.Date, 0, len(w.Concerts))
	for _, d := range w.Concerts {
		if d != w.Cycle.To {
			others = append(others, d)
		}
	}

	set := AttendanceSet{Window: w, Rows: make([]*AttendanceRow, 0, len(t.Rows)), Collisions: t.Collisions}
	for _, r := range t.Rows {
		a := &AttendanceRow{Row: r}
		status := r.Entry.Status(w.Cycle.To)
		a.SingingThisCycle = status.Singing()
		a.MaybeThisCycle = status.IsMaybe()
		if !a.SingingThisCycle {
			for _, d := range others {
				s := r.Entry.Status(d)
				a.OtherCyclesYes = a.OtherCyclesYes || s.Singing()
				a.OtherCyclesMaybe = a.OtherCyclesMaybe || s.IsMaybe()
			}
			if a.OtherCyclesYes {
				a.OtherCyclesMaybe = false
			}
		}
		a.Gone = r.OnRoster() && !a.SingingThisCycle && !a.OtherCyclesYes && !a.OtherCyclesMaybe
		a.ActiveEmails = r.Entry.ChorusEmailsActive()

		if r.Actual != nil {
			a.Attended = r.Actual.CountOf(attendance.Present, w.Past)
			a.AttendedAtLeastOne = a.Attended > 0
			a.AbsencesActual = len(w.Past) - a.Attended
		}
		if r.Projected != nil {
			a.AbsencesProjected = r.Projected.CountOf(attendance.Absent, w.Future)
		}
		a.AbsencesKnown = r.Actual != nil && r.Projected != nil
		if a.AbsencesKnown {
			a.AbsencesTotal = a.AbsencesActual + a.AbsencesProjected
		}
		a.RelevantAbsences = a.SingingThisCycle && a.AbsencesKnown && a.AbsencesTotal >= AbsenceLimit

		if w.HasMostRecent {
			a.PresentTonight = r.Actual.Mark(w.MostRecent) == attendance.Present
			a.AbsentTonight = a.SingingThisCycle && !a.PresentTonight
			if r.Projected.Mark(w.MostRecent) == attendance.Absent {
				a.Excused = ExcusedMarked
			} else {
				a.Excused = ExcusedUnmarked
			}
		}
		set.Rows = append(set.Rows, a)
	}
	return set
}

func (s AttendanceSet) filter(keep func(*AttendanceRow) bool) []*AttendanceRow {
	var out []*AttendanceRow
	for _, r := range s.Rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Singing returns rows singing this cycle.
func (s AttendanceSet) Singing() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.SingingThisCycle })
}

// MaybeThisCycle returns rows marked Maybe for this cycle.
func (s AttendanceSet) MaybeThisCycle() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.MaybeThisCycle })
}

// OtherCyclesYes returns rows not singing now but singing another cycle.
func (s AttendanceSet) OtherCyclesYes() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.OtherCyclesYes })
}

// OtherCyclesMaybe returns rows whose only commitment is a Maybe elsewhere.
func (s AttendanceSet) OtherCyclesMaybe() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.OtherCyclesMaybe })
}

// Gone returns roster rows with no Yes, Partial or Maybe anywhere.
func (s AttendanceSet) Gone() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.Gone })
}

// EmailsNotSinging returns rows receiving chorus emails without being on this cycle's roster.
func (s AttendanceSet) EmailsNotSinging() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.ActiveEmails && !r.SingingThisCycle })
}

// SingingNotOnEmails returns singing rows missing from the chorus mailing list.
func (s AttendanceSet) SingingNotOnEmails() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.SingingThisCycle && !r.ActiveEmails })
}

// RelevantAbsences returns singing rows at or over the absence limit.
func (s AttendanceSet) RelevantAbsences() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.RelevantAbsences })
}

// PresentTonight returns rows marked present at the most recent rehearsal.
func (s AttendanceSet) PresentTonight() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.PresentTonight })
}

// AbsentTonight returns singing rows not marked present at the most recent rehearsal.
func (s AttendanceSet) AbsentTonight() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.AbsentTonight })
}

// AttendedNotSinging returns rows that came to a rehearsal this cycle
// without being on this cycle's roster.
func (s AttendanceSet) AttendedNotSinging() []*AttendanceRow {
	return s.filter(func(r *AttendanceRow) bool { return r.AttendedAtLeastOne && !r.SingingThisCycle })
}

// Rows extracts the joined rows, e.g. for rendering name lists.
func Rows(rows []*AttendanceRow) []*Row {
	out := make([]*Row, len(rows))
	for i, r := range rows {
		out[i] = r.Row
	}
	return out
}

// ProjectedAbsences lists who is marked absent and who has not answered for
// one rehearsal date.
type ProjectedAbsences struct {
	Date     season.Date
	Absent   []*Row
	Unmarked []*Row
}

// ProjectedAbsencesFor splits singing rows by their projected mark on d.
// A row missing from the projected sheet counts as unmarked.
// PRE: rows are the singing rows of a filled table
// POST: no row appears in both lists
func ProjectedAbsencesFor(rows []*Row, d season.Date) ProjectedAbsences {
	p := ProjectedAbsences{Date: d}
	for _, r := range rows {
		switch r.Projected.Mark(d) {
		case attendance.Absent:
			p.Absent = append(p.Absent, r)
		case attendance.Unmarked:
			p.Unmarked = append(p.Unmarked, r)
		}
	}
	return p
}

// Count is the number of absent rows.
func (p ProjectedAbsences) Count() int { return len(p.Absent) }
