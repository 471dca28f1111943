package roster

import (
	"errors"
	"fmt"
	"strings"

	"choirreport/internal/domain/season"
)

// Status is a singer's participation value for one concert.
type Status string

// Business rule constants
const (
	StatusYes     Status = "Yes"
	StatusPartial Status = "Partial"
	StatusMaybe   Status = "Maybe"
	StatusNo      Status = "No"
	StatusUnset   Status = ""

	ChorusEmailsYes = "Yes"
)

// Domain errors
var (
	ErrMissingName      = errors.New("roster entry has no name")
	ErrMissingVoicePart = errors.New("roster entry has no voice part")
	ErrUnknownVoicePart = errors.New("voice part not defined on the board")
)

// Singing reports whether the status counts toward the concert roster.
func (s Status) Singing() bool {
	return s == StatusYes || s == StatusPartial
}

// IsPartial reports whether the singer is doing some of the concerts.
func (s Status) IsPartial() bool { return s == StatusPartial }

// IsMaybe reports whether the singer has not decided yet.
func (s Status) IsMaybe() bool { return s == StatusMaybe }

// IsNo reports whether the singer has declined.
func (s Status) IsNo() bool { return s == StatusNo }

// MightSing reports Yes, Partial or Maybe.
func (s Status) MightSing() bool {
	return s.Singing() || s.IsMaybe()
}

// VoicePart carries the display metadata for one section label.
type VoicePart struct {
	Label   string
	SortKey float64
	Color   string
	Border  string
}

// VoiceParts maps a voice part label to its metadata.
type VoiceParts map[string]VoicePart

// Entry is one singer on the planning board.
type Entry struct {
	Name         string
	Email        string
	VoicePart    string
	ChorusEmails string
	Concerts     map[season.Date]Status
	Fields       map[string]string // non-date columns not modelled above
}

// Validate checks the fields every later stage relies on.
// PRE: Entry is populated from the board
// POST: Returns nil if valid, error otherwise
// INVARIANT: Name and VoicePart must not be empty
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(e.VoicePart) == "" {
		return fmt.Errorf("%w: %s", ErrMissingVoicePart, e.Name)
	}
	return nil
}

// Status returns the singer's status for a concert date.
func (e *Entry) Status(d season.Date) Status {
	if e == nil {
		return StatusUnset
	}
	return e.Concerts[d]
}

// ChorusEmailsActive reports whether the singer is on the chorus mailing list.
func (e *Entry) ChorusEmailsActive() bool {
	return e != nil && e.ChorusEmails == ChorusEmailsYes
}

// Roster is the whole planning board.
type Roster struct {
	Entries    []Entry
	VoiceParts VoiceParts
}

// Validate checks every entry and that each voice part has metadata.
// PRE: Roster is populated
// POST: Returns the first invalid entry's error, or nil
func (r *Roster) Validate() error {
	for i := range r.Entries {
		e := &r.Entries[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if _, ok := r.VoiceParts[e.VoicePart]; !ok {
			return fmt.Errorf("%w: %q (%s)", ErrUnknownVoicePart, e.VoicePart, e.Name)
		}
	}
	return nil
}

// ConcertDates returns the sorted union of concert columns across entries.
func (r *Roster) ConcertDates() []season.Date {
	seen := make(map[season.Date]bool)
	var dates []season.Date
	for _, e := range r.Entries {
		for d := range e.Concerts {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	season.SortDates(dates)
	return dates
}
