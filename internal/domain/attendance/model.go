package attendance

import (
	"errors"
	"fmt"
	"strings"

	"choirreport/internal/domain/season"
)

// Mark is the tri-state value of one (singer, date) cell.
type Mark int8

// Mark values. The zero value is Unmarked so a missing cell reads as unmarked.
const (
	Unmarked Mark = iota
	Absent
	Present
)

// ErrBadMark is returned for cell values other than "1", "0" or blank.
var ErrBadMark = errors.New("attendance mark must be 1, 0 or blank")

// ParseMark converts a grid cell into a Mark.
// PRE: s is the raw cell text
// POST: Returns Present for "1", Absent for "0", Unmarked for blank
func ParseMark(s string) (Mark, error) {
	switch strings.TrimSpace(s) {
	case "":
		return Unmarked, nil
	case "1":
		return Present, nil
	case "0":
		return Absent, nil
	default:
		return Unmarked, fmt.Errorf("%w: %q", ErrBadMark, s)
	}
}

// String returns "1", "0" or "" like the grid export.
func (m Mark) String() string {
	switch m {
	case Present:
		return "1"
	case Absent:
		return "0"
	default:
		return ""
	}
}

// Record holds one singer's marks keyed by date.
type Record struct {
	Name  string
	Marks map[season.Date]Mark
}

// Mark returns the mark for d, Unmarked when absent from the grid.
func (r *Record) Mark(d season.Date) Mark {
	if r == nil {
		return Unmarked
	}
	return r.Marks[d]
}

// CountOf counts how many of dates carry the given mark.
func (r *Record) CountOf(m Mark, dates []season.Date) int {
	n := 0
	for _, d := range dates {
		if r.Mark(d) == m {
			n++
		}
	}
	return n
}

// Sheet is an attendance grid: one record per singer, one column per event date.
// Dates is always sorted ascending.
type Sheet struct {
	Dates   []season.Date
	Records []Record
}

// Sort orders the date columns ascending.
func (s *Sheet) Sort() {
	season.SortDates(s.Dates)
}

// Earliest returns the first date column.
func (s *Sheet) Earliest() (season.Date, bool) {
	if len(s.Dates) == 0 {
		return season.Date{}, false
	}
	return s.Dates[0], true
}

// Latest returns the last date column.
func (s *Sheet) Latest() (season.Date, bool) {
	if len(s.Dates) == 0 {
		return season.Date{}, false
	}
	return s.Dates[len(s.Dates)-1], true
}

// DatesAfter returns the date columns strictly after d.
func (s *Sheet) DatesAfter(d season.Date) []season.Date {
	var out []season.Date
	for _, c := range s.Dates {
		if c.After(d) {
			out = append(out, c)
		}
	}
	return out
}

// DatesFrom returns the date columns on or after d.
func (s *Sheet) DatesFrom(d season.Date) []season.Date {
	var out []season.Date
	for _, c := range s.Dates {
		if !c.Before(d) {
			out = append(out, c)
		}
	}
	return out
}
