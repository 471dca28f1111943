package projections

import (
	"strings"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/member"
	"choirreport/internal/domain/roster"
	"choirreport/internal/domain/season"
)

// ConsistencyInput holds the already-fetched tables for a consistency check.
type ConsistencyInput struct {
	Roster            roster.Roster
	Candidates        []member.Candidate
	Portal            []member.Member
	ConcertAttendance attendance.Sheet
	Season            string // e.g. "2025-26"
	CycleTo           season.Date
}

// Mismatch is one singer whose field differs between the board and the portal.
type Mismatch struct {
	Row    *Row
	Board  string
	Portal string
}

// ConcertTally counts explicit concert marks for one singer.
type ConcertTally struct {
	MarkedAbsent  int
	MarkedSinging int
}

// ConsistencySet holds every discrepancy between the board and the portal.
type ConsistencySet struct {
	Table   *Table
	CycleTo season.Date

	CandidatesMissingFromRoster []*Row
	RosterMissingFromPortal     []*Row
	PortalMissingFromRoster     []*Row

	EmailMismatches     []Mismatch
	VoicePartMismatches []Mismatch

	MarkedNoButMightSing             []*Row
	MarkedPartialButNotPartial       []*Row
	MarkedYesButNotSinging           []*Row
	PartialRosterButMarkedNonpartial []*Row

	Collisions []Collision
}

// ClassifyConsistency cross-checks the board against the portal.
// PRE: in.Roster has been validated; ConcertAttendance Dates are this cycle's concerts
// POST: every discrepancy list is in (SortKey, Name) order
func ClassifyConsistency(in ConsistencyInput) ConsistencySet {
	t := JoinAndNormalize(in.Roster,
		WithCandidates(in.Candidates),
		WithPortal(in.Portal),
		WithSheet(SourceConcerts, in.ConcertAttendance),
	)
	set := ConsistencySet{Table: t, CycleTo: in.CycleTo, Collisions: t.Collisions}
	concerts := in.ConcertAttendance.Dates

	for _, r := range t.Rows {
		status := r.Entry.Status(in.CycleTo)
		audition := r.Indicator(SourceAudition)
		portal := r.Indicator(SourcePortal)

		if r.Candidate.AcceptedFor(in.Season) && audition == RightOnly {
			set.CandidatesMissingFromRoster = append(set.CandidatesMissingFromRoster, r)
		}
		if status.MightSing() && portal == LeftOnly {
			set.RosterMissingFromPortal = append(set.RosterMissingFromPortal, r)
		}
		if portal == RightOnly || (audition == RightOnly && portal == Both) {
			set.PortalMissingFromRoster = append(set.PortalMissingFromRoster, r)
		}

		if portal == Both {
			// Compare the board's own email: r.Email is back-filled from the portal.
			if r.Entry != nil && !strings.EqualFold(strings.TrimSpace(r.Entry.Email), strings.TrimSpace(r.Portal.PrimaryEmail)) {
				set.EmailMismatches = append(set.EmailMismatches, Mismatch{Row: r, Board: r.Entry.Email, Portal: r.Portal.PrimaryEmail})
			}
			if r.VoicePart != r.Portal.VoicePart {
				set.VoicePartMismatches = append(set.VoicePartMismatches, Mismatch{Row: r, Board: r.VoicePart, Portal: r.Portal.VoicePart})
			}
		}

		// Singers missing from the concert sheet have no marks to disagree with.
		if len(concerts) == 0 || r.Concerts == nil {
			continue
		}
		tally := TallyConcerts(r.Concerts, concerts)
		markedNo := tally.MarkedAbsent == len(concerts)
		markedPartial := tally.MarkedAbsent > 0 && !markedNo
		markedYes := tally.MarkedSinging == len(concerts)
		markedSomething := tally.MarkedAbsent+tally.MarkedSinging > 0

		if markedNo && status.MightSing() {
			set.MarkedNoButMightSing = append(set.MarkedNoButMightSing, r)
		}
		if markedPartial && !status.IsPartial() {
			set.MarkedPartialButNotPartial = append(set.MarkedPartialButNotPartial, r)
		}
		if status.IsPartial() && !markedPartial && markedSomething {
			set.PartialRosterButMarkedNonpartial = append(set.PartialRosterButMarkedNonpartial, r)
		}
		if markedYes && (status.IsNo() || status.IsMaybe()) {
			set.MarkedYesButNotSinging = append(set.MarkedYesButNotSinging, r)
		}
	}
	return set
}

// TallyConcerts counts explicit absent and present marks over the concert dates.
func TallyConcerts(rec *attendance.Record, concerts []season.Date) ConcertTally {
	return ConcertTally{
		MarkedAbsent:  rec.CountOf(attendance.Absent, concerts),
		MarkedSinging: rec.CountOf(attendance.Present, concerts),
	}
}

// WorthSending reports whether any discrepancy was found.
func (s ConsistencySet) WorthSending() bool {
	return s.Discrepancies() > 0
}

// Discrepancies is the total number of flagged rows, mismatches and name collisions.
func (s ConsistencySet) Discrepancies() int {
	return len(s.CandidatesMissingFromRoster) +
		len(s.RosterMissingFromPortal) +
		len(s.PortalMissingFromRoster) +
		len(s.EmailMismatches) +
		len(s.VoicePartMismatches) +
		len(s.MarkedNoButMightSing) +
		len(s.MarkedPartialButNotPartial) +
		len(s.MarkedYesButNotSinging) +
		len(s.PartialRosterButMarkedNonpartial) +
		len(s.Collisions)
}
