package projections

import (
	"math"
	"reflect"
	"testing"

	"choirreport/internal/domain/member"
	"choirreport/internal/domain/roster"
)

// TestJoinAndNormalize_FillsEveryRow verifies color, sort key and email are always set.
func TestJoinAndNormalize_FillsEveryRow(t *testing.T) {
	r := testRoster(
		entry("Alice Smith", "alice@example.org", "Soprano", "Yes", roster.StatusNo, roster.StatusYes, roster.StatusYes),
		entry("Carl Cruz", "", "Tenor", "Yes", roster.StatusNo, roster.StatusYes, roster.StatusNo),
	)
	projected := sheet(rehearsals(4, 11), map[string][]Mark{
		"Alice Smith": {P, U},
		"Walk In":     {U, A},
	})

	tbl := JoinAndNormalize(r, WithSheet(SourceProjected, projected))

	if len(tbl.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tbl.Rows))
	}
	for _, row := range tbl.Rows {
		if row.Color == "" || math.IsNaN(row.SortKey) || row.Email == "" {
			t.Errorf("row %q not filled: %+v", row.Name, row)
		}
	}

	got := names(tbl.Rows)
	want := []string{"Alice Smith", "Carl Cruz", "Walk In"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order=%v want %v", got, want)
	}

	walkIn := tbl.Rows[2]
	if walkIn.Color != DefaultColor || !math.IsInf(walkIn.SortKey, 1) || walkIn.Email != MissingEmail {
		t.Errorf("unexpected fill for projected-only row: %+v", walkIn)
	}
	if walkIn.Indicator(SourceProjected) != RightOnly || walkIn.OnRoster() {
		t.Errorf("walk-in provenance = %s onRoster=%v", walkIn.Indicator(SourceProjected), walkIn.OnRoster())
	}
	if tbl.Rows[1].Email != MissingEmail || tbl.Rows[1].Indicator(SourceProjected) != LeftOnly {
		t.Errorf("carl: email=%q indicator=%s", tbl.Rows[1].Email, tbl.Rows[1].Indicator(SourceProjected))
	}
	if tbl.Rows[0].Indicator(SourceProjected) != Both {
		t.Errorf("alice indicator=%s want both", tbl.Rows[0].Indicator(SourceProjected))
	}
}

// TestJoinAndNormalize_SortsBySectionThenName verifies (SortKey, Name) ordering.
func TestJoinAndNormalize_SortsBySectionThenName(t *testing.T) {
	r := testRoster(
		entry("Zed Bass", "z@x", "Bass", "Yes", "", roster.StatusYes, ""),
		entry("émile Alto", "e@x", "Alto", "Yes", "", roster.StatusYes, ""),
		entry("Adam Bass", "a@x", "Bass", "Yes", "", roster.StatusYes, ""),
		entry("Erin Alto", "e2@x", "Alto", "Yes", "", roster.StatusYes, ""),
		entry("Sue Soprano", "s@x", "Soprano", "Yes", "", roster.StatusYes, ""),
	)

	tbl := JoinAndNormalize(r)

	got := names(tbl.Rows)
	want := []string{"Sue Soprano", "émile Alto", "Erin Alto", "Adam Bass", "Zed Bass"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order=%v want %v", got, want)
	}
}

// TestJoinPortal_BackfillsPortalOnlyRows verifies name, email and voice part
// come from the portal when the roster has no row.
func TestJoinPortal_BackfillsPortalOnlyRows(t *testing.T) {
	r := testRoster(entry("Alice Smith", "", "Soprano", "Yes", "", roster.StatusYes, ""))
	portal := []member.Member{
		{WholeName: "Alice Smith", PrimaryEmail: "alice@portal.org", VoicePart: "Soprano", Active: true},
		{WholeName: "Bob Jones", PrimaryEmail: "bob@portal.org", VoicePart: "Bass", Active: true},
	}

	tbl := JoinAndNormalize(r, WithPortal(portal))

	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tbl.Rows))
	}
	alice, bob := tbl.Rows[0], tbl.Rows[1]
	if alice.Email != "alice@portal.org" {
		t.Errorf("alice email=%q want portal email", alice.Email)
	}
	if bob.Name != "Bob Jones" || bob.Email != "bob@portal.org" || bob.VoicePart != "Bass" {
		t.Errorf("bob not back-filled: %+v", bob)
	}
	if bob.Indicator(SourcePortal) != RightOnly {
		t.Errorf("bob indicator=%s want right_only", bob.Indicator(SourcePortal))
	}
	if bob.Color != DefaultColor || !math.IsInf(bob.SortKey, 1) {
		t.Errorf("portal-only row should keep default display: %+v", bob)
	}
}

// TestJoin_NormalizesNameKey verifies whitespace and Unicode form differences still match.
func TestJoin_NormalizesNameKey(t *testing.T) {
	r := testRoster(entry("Zoé Park", "z@x", "Alto", "Yes", "", roster.StatusYes, ""))
	actual := sheet(rehearsals(4), map[string][]Mark{"  Zoé   Park ": {P}})

	tbl := JoinAndNormalize(r, WithSheet(SourceActual, actual))

	if len(tbl.Rows) != 1 {
		t.Fatalf("expected names to match, got rows %v", names(tbl.Rows))
	}
	if tbl.Rows[0].Actual == nil || tbl.Rows[0].Indicator(SourceActual) != Both {
		t.Errorf("actual record not attached: %+v", tbl.Rows[0])
	}
}

// TestJoin_FlagsCollisions verifies duplicate names are reported instead of silently merged.
func TestJoin_FlagsCollisions(t *testing.T) {
	r := testRoster(
		entry("Sam Lee", "sam1@x", "Tenor", "Yes", "", roster.StatusYes, ""),
		entry("Sam Lee", "sam2@x", "Bass", "Yes", "", roster.StatusYes, ""),
	)
	portal := []member.Member{
		{WholeName: "Pat Kim", PrimaryEmail: "p1@x"},
		{WholeName: "Pat Kim", PrimaryEmail: "p2@x"},
	}

	tbl := JoinAndNormalize(r, WithPortal(portal))

	want := []Collision{
		{Source: "roster", Name: "Sam Lee", Count: 2},
		{Source: "portal", Name: "Pat Kim", Count: 2},
	}
	if !reflect.DeepEqual(tbl.Collisions, want) {
		t.Errorf("collisions=%+v want %+v", tbl.Collisions, want)
	}
	var patRows int
	for _, row := range tbl.Rows {
		if row.Name == "Pat Kim" {
			patRows++
			if row.Portal.PrimaryEmail != "p1@x" {
				t.Errorf("expected first portal record to win, got %q", row.Portal.PrimaryEmail)
			}
		}
	}
	if patRows != 1 {
		t.Errorf("expected one Pat Kim row, got %d", patRows)
	}
}

// TestJoin_LaterJoinLeavesEarlierIndicatorsNone verifies rows created by a later
// join are untagged for earlier sources.
func TestJoin_LaterJoinLeavesEarlierIndicatorsNone(t *testing.T) {
	r := testRoster(entry("Alice Smith", "a@x", "Soprano", "Yes", "", roster.StatusYes, ""))
	candidates := []member.Candidate{{Name: "New Voice", Group: "2025-26", Result: member.ResultAccepted, Email: "nv@x"}}
	portal := []member.Member{{WholeName: "Portal Only"}}

	tbl := JoinAndNormalize(r, WithCandidates(candidates), WithPortal(portal))

	for _, row := range tbl.Rows {
		switch row.Name {
		case "New Voice":
			if row.Indicator(SourceAudition) != RightOnly || row.Indicator(SourcePortal) != LeftOnly {
				t.Errorf("candidate row indicators audition=%s portal=%s", row.Indicator(SourceAudition), row.Indicator(SourcePortal))
			}
			if row.Email != "nv@x" {
				t.Errorf("candidate email not filled: %q", row.Email)
			}
		case "Portal Only":
			if row.Indicator(SourceAudition) != IndicatorNone || row.Indicator(SourcePortal) != RightOnly {
				t.Errorf("portal row indicators audition=%s portal=%s", row.Indicator(SourceAudition), row.Indicator(SourcePortal))
			}
		}
	}
}
