package render

import (
	"math"
	"strings"
	"testing"
	"time"

	"choirreport/internal/application/projections"
	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/roster"
	"choirreport/internal/domain/season"
)

func singer(name, email, part, color string, key float64) *projections.Row {
	return &projections.Row{Name: name, Email: email, VoicePart: part, Color: color, SortKey: key}
}

// TestSingersIndented_Empty renders the None sentinel inside the indentation markup.
func TestSingersIndented_Empty(t *testing.T) {
	got, err := SingersIndented(nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := `<p style="margin-left: 1.5rem">None</p>`; string(got) != want {
		t.Errorf("got %q want %q", got, want)
	}
}

// TestMismatchTable_Empty renders the bare None sentinel.
func TestMismatchTable_Empty(t *testing.T) {
	got, err := MismatchTable(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != None {
		t.Errorf("got %q want None", got)
	}
}

// TestSingersOneLine_LinksAndColors renders mailto links colored by section.
func TestSingersOneLine_LinksAndColors(t *testing.T) {
	got, err := SingersOneLine([]*projections.Row{
		singer("Alice Smith", "alice@example.org", "Soprano", "#e2445c", 0),
		singer("Bob <b>Jones</b>", "bob@example.org", "Bass", "red;} body{display:none", 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(got)
	for _, want := range []string{
		`href="mailto:alice@example.org"`,
		"background-color: #e2445c;",
		">Alice Smith</a>",
		"Bob &lt;b&gt;Jones&lt;/b&gt;",
		"background-color: black;",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in %s", want, s)
		}
	}
	if strings.Contains(s, "display:none") {
		t.Errorf("unsafe color leaked into style: %s", s)
	}
}

// TestMismatchTable_Rows renders the two-system comparison with headers.
func TestMismatchTable_Rows(t *testing.T) {
	got, err := MismatchTable([]projections.Mismatch{{
		Row:    singer("Carl Cruz", "carl@board.org", "Tenor", "#00c875", 2),
		Board:  "Tenor",
		Portal: "Bass",
	}})
	if err != nil {
		t.Fatal(err)
	}
	s := string(got)
	for _, want := range []string{">Monday</th>", ">ChoirGenius</th>", "mailto:carl@board.org", ">Tenor</td>", ">Bass</td>"} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in %s", want, s)
		}
	}
	if strings.Contains(s, ">Name</th>") {
		t.Error("first header should render blank")
	}
}

// TestSubtotalsTable_GroupsBySection counts per voice part in section order with totals.
func TestSubtotalsTable_GroupsBySection(t *testing.T) {
	rows := []*projections.Row{
		singer("B1", "b1@x", "Bass", "#0086c0", 3),
		singer("S1", "s1@x", "Soprano", "#e2445c", 0),
		singer("S2", "s2@x", "Soprano", "#e2445c", 0),
	}
	got, err := SubtotalsTable(rows, Subtotal[*projections.Row]{Label: "Roster", Has: func(*projections.Row) bool { return true }})
	if err != nil {
		t.Fatal(err)
	}
	s := string(got)
	sop, bass := strings.Index(s, ">Soprano<"), strings.Index(s, ">Bass<")
	if sop < 0 || bass < 0 || sop > bass {
		t.Errorf("expected Soprano before Bass: %s", s)
	}
	if !strings.Contains(s, "<tfoot>") || !strings.Contains(s, ">3</td>") {
		t.Errorf("expected totals row with 3: %s", s)
	}
}

// TestSubtotalsTable_SplitsSectionsBySortKeyAndColor keeps an unranked voice
// part apart from the ranked section of the same name.
func TestSubtotalsTable_SplitsSectionsBySortKeyAndColor(t *testing.T) {
	rows := []*projections.Row{
		singer("A1", "a1@x", "Alto", "#fdab3d", 1),
		singer("A2", "a2@x", "Alto", "#fdab3d", 1),
		singer("Portal Only", "p@x", "Alto", projections.DefaultColor, math.Inf(1)),
		singer("B1", "b1@x", "Bass", "#0086c0", 3),
	}
	got, err := SubtotalsTable(rows, Subtotal[*projections.Row]{Label: "Roster", Has: func(*projections.Row) bool { return true }})
	if err != nil {
		t.Fatal(err)
	}
	s := string(got)
	if n := strings.Count(s, ">Alto<"); n != 2 {
		t.Fatalf("expected two Alto sections, got %d: %s", n, s)
	}
	first, bass, last := strings.Index(s, ">Alto<"), strings.Index(s, ">Bass<"), strings.LastIndex(s, ">Alto<")
	if !(first < bass && bass < last) {
		t.Errorf("expected ranked Alto, Bass, then unranked Alto: %s", s)
	}
	if !strings.Contains(s, ">2</td>") || !strings.Contains(s, ">4</td>") {
		t.Errorf("expected ranked Alto count 2 and total 4: %s", s)
	}
}

// TestAbsenceTotals_OrdersMostAbsencesFirst groups singers by absence triple.
func TestAbsenceTotals_OrdersMostAbsencesFirst(t *testing.T) {
	mk := func(name string, total, actual, projected int) *projections.AttendanceRow {
		return &projections.AttendanceRow{
			Row:           singer(name, strings.ToLower(name)+"@x", "Alto", "#fdab3d", 1),
			AbsencesTotal: total, AbsencesActual: actual, AbsencesProjected: projected,
		}
	}
	got, err := AbsenceTotals([]*projections.AttendanceRow{
		mk("Three", 3, 2, 1),
		mk("Five", 5, 5, 0),
		mk("AlsoThree", 3, 2, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(got)
	five, three, also := strings.Index(s, ">Five<"), strings.Index(s, ">Three<"), strings.Index(s, ">AlsoThree<")
	if five < 0 || three < 0 || also < 0 {
		t.Fatalf("missing names: %s", s)
	}
	if !(five < also && also < three) {
		t.Errorf("unexpected order five=%d also=%d three=%d", five, also, three)
	}
	if strings.Count(s, "<tr style=") != 2 {
		t.Errorf("expected 2 grouped rows: %s", s)
	}
}

// TestRenderer_AttendanceWithoutRehearsals renders a neutral This Week section.
func TestRenderer_AttendanceWithoutRehearsals(t *testing.T) {
	dec := season.NewDate(2025, time.December, 14)
	r := roster.Roster{
		Entries: []roster.Entry{{
			Name: "Alice Smith", Email: "alice@x", VoicePart: "Soprano", ChorusEmails: "Yes",
			Concerts: map[season.Date]roster.Status{dec: roster.StatusYes},
		}},
		VoiceParts: roster.VoiceParts{"Soprano": {Label: "Soprano", Color: "#e2445c"}},
	}
	tbl := projections.JoinAndNormalize(r)
	cycle := season.Cycle{From: season.NewDate(2025, time.October, 27), To: dec}
	set := projections.ClassifyAttendance(tbl, projections.NewAttendanceWindow(cycle, r.ConcertDates(), attendance.Sheet{}, attendance.Sheet{}))

	html, err := New([]string{"https://example.org/roster"}, "https://example.org/calendar").Attendance(set)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"No rehearsals have been held yet this cycle.",
		"No more rehearsals this cycle!",
		"This Cycle (2025-10-27 to 2025-12-14)",
		"December Roster",
		`href="https://example.org/roster"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q", want)
		}
	}
	if strings.Contains(html, "Absence details") {
		t.Error("absence details should be omitted without a rehearsal")
	}
}

// TestRenderer_Nag lists the unmarked dates.
func TestRenderer_Nag(t *testing.T) {
	dec := season.NewDate(2025, time.December, 14)
	n := projections.Nag{
		Row:      singer("Alice Smith", "alice@x", "Soprano", "#e2445c", math.Inf(1)),
		Unmarked: []season.Date{season.NewDate(2025, time.December, 1), season.NewDate(2025, time.December, 8)},
	}

	html, err := New(nil, "https://example.org/calendar").Nag(n, dec)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Dear Alice,", "through December 14", "<li>2025-12-01</li>", "<li>2025-12-08</li>", `href="https://example.org/calendar"`} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q", want)
		}
	}
}
