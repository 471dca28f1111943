package projections

import (
	"time"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/roster"
	"choirreport/internal/domain/season"
)

var (
	octConcert = season.NewDate(2025, time.October, 26)
	decConcert = season.NewDate(2025, time.December, 14)
	mayConcert = season.NewDate(2026, time.May, 17)

	decCycle = season.Cycle{From: octConcert.AddDays(1), To: decConcert}
)

func testVoiceParts() roster.VoiceParts {
	return roster.VoiceParts{
		"Soprano": {Label: "Soprano", SortKey: 0, Color: "#e2445c", Border: "#ce3048"},
		"Alto":    {Label: "Alto", SortKey: 1, Color: "#fdab3d", Border: "#e99729"},
		"Tenor":   {Label: "Tenor", SortKey: 2, Color: "#00c875", Border: "#00b461"},
		"Bass":    {Label: "Bass", SortKey: 3, Color: "#0086c0", Border: "#0072ac"},
	}
}

// entry builds a roster entry with statuses for (oct, dec, may).
func entry(name, email, part, emails string, oct, dec, may roster.Status) roster.Entry {
	return roster.Entry{
		Name:         name,
		Email:        email,
		VoicePart:    part,
		ChorusEmails: emails,
		Concerts: map[season.Date]roster.Status{
			octConcert: oct,
			decConcert: dec,
			mayConcert: may,
		},
	}
}

func testRoster(entries ...roster.Entry) roster.Roster {
	return roster.Roster{Entries: entries, VoiceParts: testVoiceParts()}
}

// sheet builds an attendance sheet; each row maps a name to marks aligned with dates.
func sheet(dates []season.Date, rows map[string][]Mark) attendance.Sheet {
	s := attendance.Sheet{Dates: dates}
	for name, marks := range rows {
		rec := attendance.Record{Name: name, Marks: make(map[season.Date]attendance.Mark)}
		for i, m := range marks {
			if m != attendance.Unmarked {
				rec.Marks[dates[i]] = m
			}
		}
		s.Records = append(s.Records, rec)
	}
	s.Sort()
	return s
}

func names(rows []*Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func attendanceNames(rows []*AttendanceRow) []string {
	return names(Rows(rows))
}

func rehearsals(days ...int) []season.Date {
	out := make([]season.Date, len(days))
	for i, d := range days {
		out[i] = season.NewDate(2025, time.November, d)
	}
	return out
}

// Mark shortens sheet literals.
type Mark = attendance.Mark

const (
	P = attendance.Present
	A = attendance.Absent
	U = attendance.Unmarked
)
