package orchestrators

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/member"
	"choirreport/internal/domain/roster"
	"choirreport/internal/domain/season"
)

// Kind names a report and the deliveries it produces.
type Kind string

const (
	KindAttendance  Kind = "attendance"
	KindProjected   Kind = "projected"
	KindConsistency Kind = "consistency"
	KindNags        Kind = "nags"
	KindError       Kind = "error"
)

// Kinds lists the runnable report kinds.
var Kinds = []Kind{KindAttendance, KindProjected, KindConsistency, KindNags}

// ParseKind validates a report name from the command line or a URL.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown report %q", s)
}

// RosterSource reads the planning board roster.
type RosterSource interface {
	FetchRoster(ctx context.Context) (roster.Roster, error)
}

// CandidateSource reads the audition board.
type CandidateSource interface {
	FetchCandidates(ctx context.Context) ([]member.Candidate, error)
}

// PortalSource reads attendance and membership from the member portal.
type PortalSource interface {
	FetchAttendance(ctx context.Context, from, to season.Date) (attendance.Sheet, error)
	FetchProjected(ctx context.Context, from, to season.Date) (attendance.Sheet, error)
	FetchConcertAttendance(ctx context.Context, from, to season.Date) (attendance.Sheet, error)
	FetchActiveMembers(ctx context.Context) ([]member.Member, error)
}

// SourceDeps holds the external tables a report may need.
type SourceDeps struct {
	Roster     RosterSource
	Candidates CandidateSource
	Portal     PortalSource

	// Unavailable is why the sources could not be connected; LoadSources
	// returns it so the run still reaches the maintainer.
	Unavailable error
}

// LoadInput selects which tables to fetch and for which window.
type LoadInput struct {
	Kind         Kind
	Today        season.Date
	RehearsalsTo season.Date // last day whose rehearsal counts as held
}

// Sources is everything fetched for one run.
type Sources struct {
	Today  season.Date
	Season string
	Cycle  season.Cycle

	Roster     roster.Roster
	Candidates []member.Candidate
	Portal     []member.Member

	Actual    attendance.Sheet
	Projected attendance.Sheet
	Concerts  attendance.Sheet
}

// LoadSources fetches the tables a report kind needs.
// The roster and membership lists are fetched concurrently first, since the
// roster's concert columns define the cycle; the cycle's sheets follow.
// PRE: deps provide every source the kind uses, or set Unavailable
// POST: the roster is valid and Cycle contains Today, or an error is returned
func LoadSources(ctx context.Context, in LoadInput, deps SourceDeps) (Sources, error) {
	if deps.Unavailable != nil {
		return Sources{}, deps.Unavailable
	}
	src := Sources{Today: in.Today, Season: season.Name(in.Today)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := deps.Roster.FetchRoster(gctx)
		if err != nil {
			return fmt.Errorf("fetch roster: %w", err)
		}
		src.Roster = r
		return nil
	})
	if in.Kind == KindConsistency {
		g.Go(func() error {
			c, err := deps.Candidates.FetchCandidates(gctx)
			if err != nil {
				return fmt.Errorf("fetch audition candidates: %w", err)
			}
			src.Candidates = c
			return nil
		})
		g.Go(func() error {
			m, err := deps.Portal.FetchActiveMembers(gctx)
			if err != nil {
				return fmt.Errorf("fetch active members: %w", err)
			}
			src.Portal = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Sources{}, err
	}
	slog.Info("sources_roster_loaded", "kind", in.Kind, "singers", len(src.Roster.Entries),
		"candidates", len(src.Candidates), "portal_members", len(src.Portal))

	if err := src.Roster.Validate(); err != nil {
		return Sources{}, fmt.Errorf("roster: %w", err)
	}
	cycle, err := season.DetermineCycle(src.Roster.ConcertDates(), in.Today)
	if err != nil {
		return Sources{}, err
	}
	src.Cycle = cycle

	g, gctx = errgroup.WithContext(ctx)
	switch in.Kind {
	case KindAttendance:
		if !in.RehearsalsTo.Before(cycle.From) {
			g.Go(func() error {
				s, err := deps.Portal.FetchAttendance(gctx, cycle.From, in.RehearsalsTo)
				if err != nil {
					return fmt.Errorf("fetch rehearsal attendance: %w", err)
				}
				src.Actual = s
				return nil
			})
		}
		g.Go(fetchProjected(gctx, deps.Portal, cycle, &src.Projected))
	case KindProjected, KindNags:
		g.Go(fetchProjected(gctx, deps.Portal, cycle, &src.Projected))
	case KindConsistency:
		g.Go(func() error {
			s, err := deps.Portal.FetchConcertAttendance(gctx, cycle.From, cycle.To)
			if err != nil {
				return fmt.Errorf("fetch concert attendance: %w", err)
			}
			src.Concerts = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Sources{}, err
	}

	src.Actual.Sort()
	src.Projected.Sort()
	src.Concerts.Sort()
	slog.Info("sources_loaded", "kind", in.Kind, "cycle", cycle.String(),
		"actual_dates", len(src.Actual.Dates), "projected_dates", len(src.Projected.Dates),
		"concert_dates", len(src.Concerts.Dates))
	return src, nil
}

func fetchProjected(ctx context.Context, portal PortalSource, cycle season.Cycle, dst *attendance.Sheet) func() error {
	return func() error {
		s, err := portal.FetchProjected(ctx, cycle.From, cycle.To)
		if err != nil {
			return fmt.Errorf("fetch projected attendance: %w", err)
		}
		*dst = s
		return nil
	}
}
