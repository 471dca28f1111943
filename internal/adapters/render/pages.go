package render

import (
	"html/template"
	"strings"

	"choirreport/internal/application/projections"
	"choirreport/internal/domain/season"
)

// Renderer turns classified sets into complete HTML email bodies.
type Renderer struct {
	Sources     []string // data-source URLs listed in the footer
	CalendarURL string   // where singers mark their plans
}

// New creates a Renderer.
func New(sources []string, calendarURL string) *Renderer {
	return &Renderer{Sources: sources, CalendarURL: calendarURL}
}

// Wrap places body in the fixed page frame with the data-source footer.
func (r *Renderer) Wrap(body template.HTML) (string, error) {
	out, err := execute("layout", struct {
		Body    template.HTML
		Sources []string
	}{body, r.Sources})
	return string(out), err
}

func (r *Renderer) page(name string, data any) (string, error) {
	body, err := execute(name, data)
	if err != nil {
		return "", err
	}
	return r.Wrap(body)
}

// htmlBuilder collects fragment errors so page assembly reads linearly.
type htmlBuilder struct {
	err error
}

func (b *htmlBuilder) add(h template.HTML, err error) template.HTML {
	if b.err == nil && err != nil {
		b.err = err
	}
	return h
}

type attendancePage struct {
	HasMostRecent    bool
	MostRecent       season.Date
	TonightSubtotals template.HTML
	AbsentTonight    template.HTML

	HasNext       bool
	NextRehearsal season.Date
	NextWeek      template.HTML

	FirstRehearsal  season.Date
	CycleTo         season.Date
	SingingCount    int
	RosterSubtotals template.HTML
	MaybeCount      int
	Maybe           template.HTML
	AbsenceTotals   template.HTML
	AbsenceLimit    int

	SittingOutCount int
	OtherYesCount   int
	OtherYes        template.HTML
	OtherMaybeCount int
	OtherMaybe      template.HTML
	GoneCount       int
	Gone            template.HTML

	EmailsNotSinging   template.HTML
	SingingNotOnEmails template.HTML
	AttendedNotSinging template.HTML

	Collisions []projections.Collision
}

type attendanceSubtotal = Subtotal[*projections.AttendanceRow]

// Attendance renders the weekly attendance report.
// PRE: set came from ClassifyAttendance
// POST: the This Week section is neutral when no rehearsal has been held
func (r *Renderer) Attendance(set projections.AttendanceSet) (string, error) {
	var b htmlBuilder
	w := set.Window
	singing := set.Singing()
	otherYes, otherMaybe, gone := set.OtherCyclesYes(), set.OtherCyclesMaybe(), set.Gone()

	p := attendancePage{
		HasMostRecent:   w.HasMostRecent,
		MostRecent:      w.MostRecent,
		CycleTo:         w.Cycle.To,
		SingingCount:    len(singing),
		MaybeCount:      len(set.MaybeThisCycle()),
		AbsenceLimit:    projections.AbsenceLimit,
		SittingOutCount: len(otherYes) + len(otherMaybe),
		OtherYesCount:   len(otherYes),
		OtherMaybeCount: len(otherMaybe),
		GoneCount:       len(gone),
		Collisions:      set.Collisions,
	}
	p.FirstRehearsal = w.Cycle.From
	if d, ok := w.FirstRehearsal(); ok {
		p.FirstRehearsal = d
	}

	if w.HasMostRecent {
		p.TonightSubtotals = b.add(SubtotalsTable(singing,
			attendanceSubtotal{Label: "Present", Has: func(r *projections.AttendanceRow) bool { return r.PresentTonight }},
			attendanceSubtotal{Label: "Absent", Has: func(r *projections.AttendanceRow) bool { return r.AbsentTonight }},
		))
		p.AbsentTonight = b.add(SingerTable(set.AbsentTonight(),
			[]Column{ColName, ColExcused, ColVoicePart},
			func(r *projections.AttendanceRow, _ Column) string { return r.Excused },
		))
	}
	if next, ok := w.NextRehearsal(); ok {
		p.HasNext, p.NextRehearsal = true, next
		p.NextWeek = b.add(ProjectedAbsences(projections.ProjectedAbsencesFor(projections.Rows(singing), next)))
	}

	rosterLabel := w.Cycle.To.MonthName() + " Roster"
	p.RosterSubtotals = b.add(SubtotalsTable(singing,
		attendanceSubtotal{Label: rosterLabel, Has: func(r *projections.AttendanceRow) bool { return r.SingingThisCycle }},
	))
	p.Maybe = b.add(SingersIndented(projections.Rows(set.MaybeThisCycle())))
	p.AbsenceTotals = b.add(AbsenceTotals(set.RelevantAbsences()))
	p.OtherYes = b.add(SingersIndented(projections.Rows(otherYes)))
	p.OtherMaybe = b.add(SingersIndented(projections.Rows(otherMaybe)))
	p.Gone = b.add(SingersIndented(projections.Rows(gone)))
	p.EmailsNotSinging = b.add(SingersIndented(projections.Rows(set.EmailsNotSinging())))
	p.SingingNotOnEmails = b.add(SingersIndented(projections.Rows(set.SingingNotOnEmails())))
	p.AttendedNotSinging = b.add(SingersIndented(projections.Rows(set.AttendedNotSinging())))
	if b.err != nil {
		return "", b.err
	}
	return r.page("attendance", p)
}

type projectedSubtotal = Subtotal[*projections.ProjectedRow]

// Projected renders the next-rehearsal roster.
func (r *Renderer) Projected(set projections.ProjectedSet) (string, error) {
	var b htmlBuilder
	p := struct {
		Rehearsal season.Date
		Subtotals template.HTML
		Details   template.HTML
	}{Rehearsal: set.Rehearsal}

	p.Subtotals = b.add(SubtotalsTable(set.Rows,
		projectedSubtotal{Label: "Confirmed", Has: func(r *projections.ProjectedRow) bool { return r.Confirmed }},
		projectedSubtotal{Label: "Marked Absent", Has: func(r *projections.ProjectedRow) bool { return r.MarkedAbsent }},
		projectedSubtotal{Label: "Not Marked", Has: func(r *projections.ProjectedRow) bool { return r.NotMarked }},
	))
	p.Details = b.add(ProjectedAbsences(set.Absences))
	if b.err != nil {
		return "", b.err
	}
	return r.page("projected", p)
}

// Consistency renders the board-versus-portal consistency report.
func (r *Renderer) Consistency(set projections.ConsistencySet) (string, error) {
	var b htmlBuilder
	p := struct {
		CycleMonth                       string
		CandidatesMissingFromRoster      template.HTML
		PortalMissingFromRoster          template.HTML
		RosterMissingFromPortal          template.HTML
		MarkedNoButMightSing             template.HTML
		MarkedPartialButNotPartial       template.HTML
		MarkedYesButNotSinging           template.HTML
		PartialRosterButMarkedNonpartial template.HTML
		EmailMismatches                  template.HTML
		VoicePartMismatches              template.HTML
		Collisions                       []projections.Collision
	}{
		CycleMonth:                       set.CycleTo.MonthName(),
		CandidatesMissingFromRoster:      b.add(SingersIndented(set.CandidatesMissingFromRoster)),
		PortalMissingFromRoster:          b.add(SingersIndented(set.PortalMissingFromRoster)),
		RosterMissingFromPortal:          b.add(SingersIndented(set.RosterMissingFromPortal)),
		MarkedNoButMightSing:             b.add(SingersIndented(set.MarkedNoButMightSing)),
		MarkedPartialButNotPartial:       b.add(SingersIndented(set.MarkedPartialButNotPartial)),
		MarkedYesButNotSinging:           b.add(SingersIndented(set.MarkedYesButNotSinging)),
		PartialRosterButMarkedNonpartial: b.add(SingersIndented(set.PartialRosterButMarkedNonpartial)),
		EmailMismatches:                  b.add(MismatchTable(set.EmailMismatches)),
		VoicePartMismatches:              b.add(MismatchTable(set.VoicePartMismatches)),
		Collisions:                       set.Collisions,
	}
	if b.err != nil {
		return "", b.err
	}
	return r.page("consistency", p)
}

// Nag renders the reminder sent to one singer with unmarked dates.
func (r *Renderer) Nag(n projections.Nag, cycleTo season.Date) (string, error) {
	return r.page("nag", struct {
		FirstName   string
		CycleTo     string
		Dates       []season.Date
		CalendarURL string
	}{
		FirstName:   n.FirstName(),
		CycleTo:     strings.TrimSpace(cycleTo.Format("January 2")),
		Dates:       n.Unmarked,
		CalendarURL: r.CalendarURL,
	})
}
