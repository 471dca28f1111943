package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"choirreport/internal/adapters/render"
	"choirreport/internal/application/projections"
	emailDomain "choirreport/internal/domain/email"
)

// Result is one rendered email and whether it merits sending unforced.
type Result struct {
	Email        emailDomain.Email
	WorthSending bool
}

// ReportInput carries the fetched tables and the run's clock and recipients.
type ReportInput struct {
	Sources    Sources
	Now        time.Time // wall clock in the choir's timezone
	SendDay    time.Weekday
	Recipients []string
	Cc         []string // nags only
	ChoirName  string   // nags only
}

// ReportDeps holds dependencies shared by the report drivers.
type ReportDeps struct {
	Renderer *render.Renderer
}

// ExecuteAttendanceReport builds the weekly attendance report.
// PRE: Sources were loaded for KindAttendance
// POST: WorthSending holds on the weekly send day or the evening of a rehearsal
func ExecuteAttendanceReport(_ context.Context, in ReportInput, deps ReportDeps) (Result, error) {
	src := in.Sources
	table := projections.JoinAndNormalize(src.Roster,
		projections.WithSheet(projections.SourceProjected, src.Projected),
		projections.WithSheet(projections.SourceActual, src.Actual),
	)
	window := projections.NewAttendanceWindow(src.Cycle, src.Roster.ConcertDates(), src.Actual, src.Projected)
	set := projections.ClassifyAttendance(table, window)

	html, err := deps.Renderer.Attendance(set)
	if err != nil {
		return Result{}, err
	}

	heldOn := src.Today
	if window.HasMostRecent {
		heldOn = window.MostRecent
	}
	worth := src.Today.Weekday() == in.SendDay || (window.HasMostRecent && window.MostRecent == src.Today)

	slog.Info("attendance_report_built", "cycle", src.Cycle.String(), "singing", len(set.Singing()),
		"absent_tonight", len(set.AbsentTonight()), "relevant_absences", len(set.RelevantAbsences()),
		"worth_sending", worth)
	return Result{
		Email: emailDomain.Email{
			Subject: fmt.Sprintf("Attendance Report for %s", heldOn),
			HTML:    html,
			To:      in.Recipients,
		},
		WorthSending: worth,
	}, nil
}

// ExecuteProjectedReport builds the roster forecast for the next rehearsal.
// PRE: Sources were loaded for KindProjected
// POST: WorthSending holds only when the next rehearsal is today
func ExecuteProjectedReport(_ context.Context, in ReportInput, deps ReportDeps) (Result, error) {
	src := in.Sources
	rehearsal, err := projections.NextRehearsalFrom(src.Projected, src.Today)
	if err != nil {
		return Result{}, err
	}

	table := projections.JoinAndNormalize(src.Roster,
		projections.WithSheet(projections.SourceProjected, src.Projected),
	)
	set := projections.ClassifyProjected(table, src.Cycle, rehearsal)

	html, err := deps.Renderer.Projected(set)
	if err != nil {
		return Result{}, err
	}

	worth := rehearsal == src.Today
	slog.Info("projected_report_built", "rehearsal", rehearsal.String(), "singing", len(set.Rows),
		"marked_absent", set.Absences.Count(), "worth_sending", worth)
	return Result{
		Email: emailDomain.Email{
			Subject: fmt.Sprintf("Projected attendance for %s", rehearsal),
			HTML:    html,
			To:      in.Recipients,
		},
		WorthSending: worth,
	}, nil
}

// ExecuteConsistencyReport compares the boards with the portal.
// PRE: Sources were loaded for KindConsistency
// POST: WorthSending holds iff at least one discrepancy was found
func ExecuteConsistencyReport(_ context.Context, in ReportInput, deps ReportDeps) (Result, error) {
	src := in.Sources
	set := projections.ClassifyConsistency(projections.ConsistencyInput{
		Roster:            src.Roster,
		Candidates:        src.Candidates,
		Portal:            src.Portal,
		ConcertAttendance: src.Concerts,
		Season:            src.Season,
		CycleTo:           src.Cycle.To,
	})

	html, err := deps.Renderer.Consistency(set)
	if err != nil {
		return Result{}, err
	}

	worth := set.WorthSending()
	slog.Info("consistency_report_built", "season", src.Season, "discrepancies", set.Discrepancies(),
		"collisions", len(set.Collisions), "worth_sending", worth)
	return Result{
		Email: emailDomain.Email{
			Subject: fmt.Sprintf("ChoirGenius vs Monday.com consistency check failed! (as of %s)",
				in.Now.Format("2006-01-02 15:04:05 MST")),
			HTML: html,
			To:   in.Recipients,
		},
		WorthSending: worth,
	}, nil
}

// ExecuteMemberNags builds one reminder per singing singer with unmarked
// projected dates. Singers without a usable address are skipped.
// PRE: Sources were loaded for KindNags
// POST: every Result is worth sending and addressed to a single singer
func ExecuteMemberNags(_ context.Context, in ReportInput, deps ReportDeps) ([]Result, error) {
	src := in.Sources
	table := projections.JoinAndNormalize(src.Roster,
		projections.WithSheet(projections.SourceProjected, src.Projected),
	)

	var results []Result
	for _, n := range projections.UnmarkedDates(table, src.Cycle, src.Projected) {
		if n.Row.Email == projections.MissingEmail {
			slog.Warn("member_nag_no_email", "name", n.Row.Name, "unmarked", len(n.Unmarked))
			continue
		}
		html, err := deps.Renderer.Nag(n, src.Cycle.To)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			Email: emailDomain.Email{
				Subject: fmt.Sprintf("%s, please mark your %s attendance", n.FirstName(), in.ChoirName),
				HTML:    html,
				To:      []string{n.Row.Email},
				Cc:      in.Cc,
			},
			WorthSending: true,
		})
	}
	slog.Info("member_nags_built", "count", len(results))
	return results, nil
}
