package projections

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/member"
	"choirreport/internal/domain/roster"
)

// Fill values applied by FillAndSort.
const (
	DefaultColor = "black"
	MissingEmail = "email-is-missing"
)

// Indicator records which side of an outer join a row came from.
type Indicator int8

// Indicator values. IndicatorNone means the row did not exist when the join ran
// (it was created by a later join).
const (
	IndicatorNone Indicator = iota
	LeftOnly
	RightOnly
	Both
)

// String returns the label used in logs.
func (i Indicator) String() string {
	switch i {
	case LeftOnly:
		return "left_only"
	case RightOnly:
		return "right_only"
	case Both:
		return "both"
	default:
		return "none"
	}
}

// Source names one of the tables joined onto the roster.
type Source int

// Join sources.
const (
	SourceProjected Source = iota
	SourceActual
	SourceAudition
	SourcePortal
	SourceConcerts
	numSources
)

var sourceNames = [numSources]string{"projected", "actual", "audition", "portal", "concerts"}

// String returns the source label.
func (s Source) String() string {
	if s < 0 || s >= numSources {
		return "unknown"
	}
	return sourceNames[s]
}

// Row is one reconciled singer after joining every source on name.
type Row struct {
	Name         string
	Email        string
	VoicePart    string
	Color        string
	Border       string
	SortKey      float64
	ChorusEmails string

	Entry     *roster.Entry // nil when the singer is not on the roster
	Projected *attendance.Record
	Actual    *attendance.Record
	Concerts  *attendance.Record
	Candidate *member.Candidate
	Portal    *member.Member

	key      string
	presence [numSources]Indicator
}

// Indicator returns the row's provenance for a join source.
func (r *Row) Indicator(s Source) Indicator {
	return r.presence[s]
}

// Base returns the joined row; classified rows embedding *Row inherit it.
func (r *Row) Base() *Row {
	return r
}

// OnRoster reports whether the singer appears on the planning board.
func (r *Row) OnRoster() bool {
	return r.Entry != nil
}

// Collision flags a join key that occurs more than once in one source.
// Only the first occurrence on the right side is joined.
type Collision struct {
	Source string
	Name   string
	Count  int
}

// Table is the reconciled singer table.
type Table struct {
	Rows       []*Row
	Collisions []Collision

	portalJoined bool
}

// Joiner joins one more source onto a table.
type Joiner func(t *Table)

// JoinAndNormalize seeds a table from the roster, applies each join in order,
// then fills display attributes and sorts.
// PRE: r has been validated
// POST: every row has Color, SortKey and Email set; rows sorted by (SortKey, Name)
func JoinAndNormalize(r roster.Roster, joins ...Joiner) *Table {
	t := NewTable(r)
	for _, j := range joins {
		j(t)
	}
	t.FillAndSort()
	return t
}

// WithSheet joins an attendance sheet as the given source.
func WithSheet(src Source, sheet attendance.Sheet) Joiner {
	return func(t *Table) { t.JoinSheet(src, sheet) }
}

// WithCandidates joins the audition board.
func WithCandidates(candidates []member.Candidate) Joiner {
	return func(t *Table) { t.JoinCandidates(candidates) }
}

// WithPortal joins the portal's active member list.
func WithPortal(members []member.Member) Joiner {
	return func(t *Table) { t.JoinPortal(members) }
}

// NewTable creates one row per roster entry with voice-part metadata attached.
// PRE: none
// POST: rows are in roster order; duplicate roster names are flagged as collisions
func NewTable(r roster.Roster) *Table {
	t := &Table{Rows: make([]*Row, 0, len(r.Entries))}
	counts := make(map[string]int)
	for i := range r.Entries {
		e := &r.Entries[i]
		row := newRow(e.Name)
		row.Entry = e
		row.Email = strings.TrimSpace(e.Email)
		row.VoicePart = e.VoicePart
		row.ChorusEmails = e.ChorusEmails
		if vp, ok := r.VoiceParts[e.VoicePart]; ok {
			row.Color = vp.Color
			row.Border = vp.Border
			row.SortKey = vp.SortKey
		}
		counts[row.key]++
		t.Rows = append(t.Rows, row)
	}
	t.addCollisions("roster", counts, func(k string) string { return k })
	return t
}

// JoinSheet outer-joins an attendance sheet on Name.
// PRE: sheet records are keyed by singer name
// POST: matched rows carry the record; unmatched records become RightOnly rows
func (t *Table) JoinSheet(src Source, sheet attendance.Sheet) {
	attach := func(r *Row, rec *attendance.Record) {
		switch src {
		case SourceActual:
			r.Actual = rec
		case SourceProjected:
			r.Projected = rec
		default:
			r.Concerts = rec
		}
	}
	t.join(src, len(sheet.Records),
		func(i int) string { return sheet.Records[i].Name },
		func(r *Row, i int) { attach(r, &sheet.Records[i]) },
	)
}

// JoinCandidates outer-joins the audition board on Name.
func (t *Table) JoinCandidates(candidates []member.Candidate) {
	t.join(SourceAudition, len(candidates),
		func(i int) string { return candidates[i].Name },
		func(r *Row, i int) { r.Candidate = &candidates[i] },
	)
}

// JoinPortal outer-joins the portal member list, matching roster Name to WholeName.
// POST: later FillAndSort back-fills Name, Email and Voice Part from the portal
func (t *Table) JoinPortal(members []member.Member) {
	t.portalJoined = true
	t.join(SourcePortal, len(members),
		func(i int) string { return members[i].WholeName },
		func(r *Row, i int) { r.Portal = &members[i] },
	)
}

func (t *Table) join(src Source, n int, name func(i int) string, attach func(r *Row, i int)) {
	byKey := make(map[string][]*Row, len(t.Rows))
	for _, r := range t.Rows {
		byKey[r.key] = append(byKey[r.key], r)
	}

	counts := make(map[string]int)
	display := make(map[string]string)
	for i := 0; i < n; i++ {
		k := normalizeKey(name(i))
		counts[k]++
		if counts[k] > 1 {
			continue
		}
		display[k] = name(i)

		rows := byKey[k]
		if len(rows) == 0 {
			r := newRow("")
			r.key = k
			attach(r, i)
			r.presence[src] = RightOnly
			t.Rows = append(t.Rows, r)
			continue
		}
		for _, r := range rows {
			attach(r, i)
			r.presence[src] = Both
		}
	}

	for _, r := range t.Rows {
		if r.presence[src] == IndicatorNone {
			r.presence[src] = LeftOnly
		}
	}
	// Rows created by a later join have no say in this one.
	t.addCollisions(src.String(), counts, func(k string) string { return display[k] })
}

func (t *Table) addCollisions(source string, counts map[string]int, display func(string) string) {
	var found []Collision
	for k, c := range counts {
		if c > 1 {
			found = append(found, Collision{Source: source, Name: display(k), Count: c})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	for _, c := range found {
		slog.Warn("join_name_collision", "source", c.Source, "name", c.Name, "count", c.Count)
	}
	t.Collisions = append(t.Collisions, found...)
}

// FillAndSort fills missing display attributes and orders rows.
// Rows known only to a non-roster source get their name from that source.
// PRE: all joins have run
// POST: Color, SortKey and Email are never empty; rows sorted by (SortKey, Name)
func (t *Table) FillAndSort() {
	for _, r := range t.Rows {
		if r.Name == "" {
			r.Name = sourceName(r)
		}
		if t.portalJoined && r.Portal != nil {
			if r.Name == "" {
				r.Name = r.Portal.WholeName
			}
			if r.Email == "" {
				r.Email = strings.TrimSpace(r.Portal.PrimaryEmail)
			}
			if r.VoicePart == "" {
				r.VoicePart = r.Portal.VoicePart
			}
		}
		if r.Email == "" && r.Candidate != nil {
			r.Email = strings.TrimSpace(r.Candidate.Email)
		}

		if r.Color == "" {
			r.Color = DefaultColor
		}
		if math.IsNaN(r.SortKey) {
			r.SortKey = math.Inf(1)
		}
		if r.Email == "" {
			r.Email = MissingEmail
		}
	}
	SortRows(t.Rows)
}

// SortRows orders rows by (SortKey, Name) using English collation for names.
func SortRows(rows []*Row) {
	c := collate.New(language.English)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.SortKey != b.SortKey {
			return a.SortKey < b.SortKey
		}
		return c.CompareString(a.Name, b.Name) < 0
	})
}

// Filter returns the rows matching keep, preserving order.
func Filter(rows []*Row, keep func(*Row) bool) []*Row {
	var out []*Row
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func newRow(name string) *Row {
	return &Row{Name: name, SortKey: math.NaN(), key: normalizeKey(name)}
}

// sourceName returns the name as spelled by the first source that knows the row.
// The portal is handled separately by FillAndSort.
func sourceName(r *Row) string {
	switch {
	case r.Projected != nil:
		return r.Projected.Name
	case r.Actual != nil:
		return r.Actual.Name
	case r.Concerts != nil:
		return r.Concerts.Name
	case r.Candidate != nil:
		return r.Candidate.Name
	default:
		return ""
	}
}

// normalizeKey makes names from different systems comparable: NFC, trimmed,
// internal whitespace collapsed. Case is significant.
func normalizeKey(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}
