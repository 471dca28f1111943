package projections

import (
	"reflect"
	"testing"
	"time"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/roster"
	"choirreport/internal/domain/season"
)

var (
	pastRehearsals   = rehearsals(3, 10, 17, 24)
	futureRehearsals = []season.Date{
		season.NewDate(2025, time.December, 1),
		season.NewDate(2025, time.December, 8),
		season.NewDate(2025, time.December, 10),
		season.NewDate(2025, time.December, 11),
	}
	allRehearsals = append(append([]season.Date(nil), pastRehearsals...), futureRehearsals...)
)

func classify(t *testing.T, r roster.Roster, actual, projected attendance.Sheet) AttendanceSet {
	t.Helper()
	tbl := JoinAndNormalize(r, WithSheet(SourceProjected, projected), WithSheet(SourceActual, actual))
	w := NewAttendanceWindow(decCycle, r.ConcertDates(), actual, projected)
	return ClassifyAttendance(tbl, w)
}

func findRow(t *testing.T, set AttendanceSet, name string) *AttendanceRow {
	t.Helper()
	for _, r := range set.Rows {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("row %q not found", name)
	return nil
}

// TestClassifyAttendance_AliceScenario verifies one past absence and no future
// marks keep a singer out of the absence totals.
func TestClassifyAttendance_AliceScenario(t *testing.T) {
	r := testRoster(entry("Alice Smith", "alice@example.org", "Soprano", "Yes", roster.StatusNo, roster.StatusYes, roster.StatusNo))
	actual := sheet(pastRehearsals, map[string][]Mark{"Alice Smith": {P, P, A, P}})
	projected := sheet(allRehearsals, map[string][]Mark{"Alice Smith": {P, P, A, P, U, U, U, U}})

	set := classify(t, r, actual, projected)
	alice := findRow(t, set, "Alice Smith")

	if alice.AbsencesActual != 1 || alice.AbsencesProjected != 0 || alice.AbsencesTotal != 1 {
		t.Errorf("absences actual=%d projected=%d total=%d want 1/0/1",
			alice.AbsencesActual, alice.AbsencesProjected, alice.AbsencesTotal)
	}
	if alice.RelevantAbsences || len(set.RelevantAbsences()) != 0 {
		t.Error("alice should not be in the 3+ absences table")
	}
	if !alice.PresentTonight || alice.AbsentTonight {
		t.Errorf("alice present=%v absent=%v at most recent rehearsal", alice.PresentTonight, alice.AbsentTonight)
	}
}

// TestClassifyAttendance_ProjectedCountsExplicitAbsencesOnly verifies [0, NA, 1, 0] counts as 2.
func TestClassifyAttendance_ProjectedCountsExplicitAbsencesOnly(t *testing.T) {
	r := testRoster(entry("Dana Diaz", "dana@x", "Alto", "Yes", "", roster.StatusYes, ""))
	actual := sheet(pastRehearsals, map[string][]Mark{"Dana Diaz": {P, P, P, A}})
	projected := sheet(allRehearsals, map[string][]Mark{"Dana Diaz": {U, U, U, U, A, U, P, A}})

	set := classify(t, r, actual, projected)
	dana := findRow(t, set, "Dana Diaz")

	if dana.AbsencesProjected != 2 {
		t.Errorf("AbsencesProjected=%d want 2", dana.AbsencesProjected)
	}
	if dana.AbsencesTotal != 3 || !dana.RelevantAbsences {
		t.Errorf("total=%d relevant=%v want 3/true", dana.AbsencesTotal, dana.RelevantAbsences)
	}
}

// TestClassifyAttendance_PartitionsRoster verifies every roster row lands in
// exactly one of singing, other-yes, other-maybe or gone.
func TestClassifyAttendance_PartitionsRoster(t *testing.T) {
	r := testRoster(
		entry("Sing Now", "a@x", "Soprano", "Yes", roster.StatusNo, roster.StatusPartial, roster.StatusNo),
		entry("Back Later", "b@x", "Alto", "Yes", roster.StatusNo, roster.StatusNo, roster.StatusYes),
		entry("Maybe Later", "c@x", "Tenor", "No", roster.StatusMaybe, roster.StatusNo, ""),
		entry("Maybe Now", "d@x", "Tenor", "Yes", roster.StatusNo, roster.StatusMaybe, roster.StatusNo),
		entry("Long Gone", "e@x", "Bass", "Yes", roster.StatusNo, roster.StatusNo, roster.StatusNo),
		entry("Both Later", "f@x", "Bass", "No", roster.StatusMaybe, "", roster.StatusYes),
	)
	actual := sheet(pastRehearsals, map[string][]Mark{"Visitor": {P, U, U, U}})
	projected := sheet(allRehearsals, nil)

	set := classify(t, r, actual, projected)

	for _, row := range set.Rows {
		if row.SingingThisCycle && row.MaybeThisCycle {
			t.Errorf("%s is both singing and maybe", row.Name)
		}
		if !row.OnRoster() {
			continue
		}
		n := 0
		for _, b := range []bool{row.SingingThisCycle, row.OtherCyclesYes, row.OtherCyclesMaybe, row.Gone} {
			if b {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%s falls into %d partitions", row.Name, n)
		}
	}

	checks := []struct {
		name string
		got  []*AttendanceRow
		want []string
	}{
		{"singing", set.Singing(), []string{"Sing Now"}},
		{"other yes", set.OtherCyclesYes(), []string{"Back Later", "Both Later"}},
		{"other maybe", set.OtherCyclesMaybe(), []string{"Maybe Later"}},
		{"gone", set.Gone(), []string{"Maybe Now", "Long Gone"}},
		{"maybe this cycle", set.MaybeThisCycle(), []string{"Maybe Now"}},
		{"emails not singing", set.EmailsNotSinging(), []string{"Back Later", "Maybe Now", "Long Gone"}},
		{"singing not on emails", set.SingingNotOnEmails(), nil},
		{"attended not singing", set.AttendedNotSinging(), []string{"Visitor"}},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			got := attendanceNames(c.got)
			if len(got) == 0 && len(c.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("got %v want %v", got, c.want)
			}
		})
	}

	visitor := findRow(t, set, "Visitor")
	if visitor.Gone {
		t.Error("a singer who is not on the roster cannot be gone")
	}
}

// TestClassifyAttendance_TonightAndExcused verifies the most recent rehearsal flags.
func TestClassifyAttendance_TonightAndExcused(t *testing.T) {
	r := testRoster(
		entry("Told Us", "a@x", "Soprano", "Yes", "", roster.StatusYes, ""),
		entry("Awol Singer", "b@x", "Alto", "Yes", "", roster.StatusYes, ""),
		entry("Came Along", "c@x", "Bass", "Yes", "", roster.StatusYes, ""),
	)
	actual := sheet(pastRehearsals, map[string][]Mark{
		"Told Us":     {P, P, P, A},
		"Awol Singer": {P, P, P, U},
		"Came Along":  {P, P, P, P},
	})
	projected := sheet(allRehearsals, map[string][]Mark{
		"Told Us":     {U, U, U, A, U, U, U, U},
		"Awol Singer": {U, U, U, P, U, U, U, U},
	})

	set := classify(t, r, actual, projected)

	if got := attendanceNames(set.AbsentTonight()); !reflect.DeepEqual(got, []string{"Told Us", "Awol Singer"}) {
		t.Errorf("absent tonight=%v", got)
	}
	if got := attendanceNames(set.PresentTonight()); !reflect.DeepEqual(got, []string{"Came Along"}) {
		t.Errorf("present tonight=%v", got)
	}
	if e := findRow(t, set, "Told Us").Excused; e != ExcusedMarked {
		t.Errorf("told us excused=%q", e)
	}
	if e := findRow(t, set, "Awol Singer").Excused; e != ExcusedUnmarked {
		t.Errorf("awol excused=%q", e)
	}
	if next, ok := set.Window.NextRehearsal(); !ok || next != futureRehearsals[0] {
		t.Errorf("next rehearsal=%v ok=%v", next, ok)
	}
}

// TestClassifyAttendance_NoRehearsalsYet verifies a brand-new cycle has vacuous tonight flags.
func TestClassifyAttendance_NoRehearsalsYet(t *testing.T) {
	r := testRoster(entry("Alice Smith", "a@x", "Soprano", "Yes", "", roster.StatusYes, ""))
	actual := attendance.Sheet{}
	projected := sheet(futureRehearsals, map[string][]Mark{"Alice Smith": {A, U, U, U}})

	set := classify(t, r, actual, projected)
	alice := findRow(t, set, "Alice Smith")

	if set.Window.HasMostRecent {
		t.Fatal("expected no most recent rehearsal")
	}
	if alice.PresentTonight || alice.AbsentTonight || alice.Excused != "" {
		t.Errorf("tonight flags should be vacuous: %+v", alice)
	}
	if len(set.Window.Future) != len(futureRehearsals) {
		t.Errorf("future=%v want every projected date", set.Window.Future)
	}
	if first, ok := set.Window.FirstRehearsal(); !ok || first != futureRehearsals[0] {
		t.Errorf("first rehearsal=%v", first)
	}
}

// TestClassifyAttendance_AbsencesNeedBothSheets verifies a singer missing from
// one sheet is never flagged for absences.
func TestClassifyAttendance_AbsencesNeedBothSheets(t *testing.T) {
	r := testRoster(entry("No Projection", "a@x", "Tenor", "Yes", "", roster.StatusYes, ""))
	actual := sheet(pastRehearsals, map[string][]Mark{"No Projection": {A, A, A, A}})
	projected := sheet(allRehearsals, nil)

	set := classify(t, r, actual, projected)
	row := findRow(t, set, "No Projection")

	if row.AbsencesKnown || row.RelevantAbsences {
		t.Errorf("known=%v relevant=%v want false/false", row.AbsencesKnown, row.RelevantAbsences)
	}
	if row.AbsencesActual != 4 {
		t.Errorf("AbsencesActual=%d want 4", row.AbsencesActual)
	}
}

// TestProjectedAbsencesFor splits absent and unmarked singers.
func TestProjectedAbsencesFor(t *testing.T) {
	r := testRoster(
		entry("Yes Person", "a@x", "Soprano", "Yes", "", roster.StatusYes, ""),
		entry("No Person", "b@x", "Alto", "Yes", "", roster.StatusYes, ""),
		entry("Silent Person", "c@x", "Bass", "Yes", "", roster.StatusYes, ""),
	)
	d := futureRehearsals[0]
	projected := sheet([]season.Date{d}, map[string][]Mark{
		"Yes Person": {P},
		"No Person":  {A},
	})
	tbl := JoinAndNormalize(r, WithSheet(SourceProjected, projected))

	p := ProjectedAbsencesFor(tbl.Rows, d)

	if got := names(p.Absent); !reflect.DeepEqual(got, []string{"No Person"}) {
		t.Errorf("absent=%v", got)
	}
	if got := names(p.Unmarked); !reflect.DeepEqual(got, []string{"Silent Person"}) {
		t.Errorf("unmarked=%v", got)
	}
	if p.Count() != 1 {
		t.Errorf("count=%d want 1", p.Count())
	}
}
