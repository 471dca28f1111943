package monday

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"choirreport/internal/domain/member"
	"choirreport/internal/domain/roster"
	"choirreport/internal/domain/season"
)

// Roster board column titles.
const (
	ColumnVoicePart    = "Voice Part"
	ColumnEmail        = "Email"
	ColumnChorusEmails = "Chorus Emails"
)

const concertTitleLayout = "Jan 2, 2006"

// parseConcertTitle reads a concert column title such as "Dec 14, 2025". A
// run of performances like "Dec 5-7, 2025" resolves to its first day.
func parseConcertTitle(title string) (season.Date, bool) {
	s := title
	if dash := strings.Index(s, "-"); dash >= 0 {
		comma := strings.Index(s, ",")
		if comma < dash {
			return season.Date{}, false
		}
		s = s[:dash] + s[comma:]
	}
	t, err := time.Parse(concertTitleLayout, s)
	if err != nil {
		return season.Date{}, false
	}
	return season.DateOf(t), true
}

type statusSettings struct {
	Labels          map[string]string  `json:"labels"`
	LabelsPositions map[string]float64 `json:"labels_positions_v2"`
	LabelsColors    map[string]struct {
		Color  string `json:"color"`
		Border string `json:"border"`
	} `json:"labels_colors"`
}

// parseVoiceParts reads section order and colors from the Voice Part status
// column settings.
func parseVoiceParts(b board) (roster.VoiceParts, error) {
	for _, col := range b.Columns {
		if col.Title != ColumnVoicePart {
			continue
		}
		var s statusSettings
		if err := json.Unmarshal([]byte(col.SettingsStr), &s); err != nil {
			return nil, fmt.Errorf("voice part settings: %w", err)
		}
		parts := make(roster.VoiceParts, len(s.Labels))
		for id, label := range s.Labels {
			vp := roster.VoicePart{Label: label, SortKey: s.LabelsPositions[id]}
			if c, ok := s.LabelsColors[id]; ok {
				vp.Color, vp.Border = c.Color, c.Border
			}
			parts[label] = vp
		}
		return parts, nil
	}
	return nil, fmt.Errorf("no %q column on the roster board", ColumnVoicePart)
}

func parseRoster(b board) (roster.Roster, error) {
	parts, err := parseVoiceParts(b)
	if err != nil {
		return roster.Roster{}, err
	}
	r := roster.Roster{VoiceParts: parts, Entries: make([]roster.Entry, 0, len(b.ItemsPage.Items))}
	for _, it := range b.ItemsPage.Items {
		e := roster.Entry{
			Name:     strings.TrimSpace(it.Name),
			Concerts: make(map[season.Date]roster.Status),
			Fields:   make(map[string]string),
		}
		for _, cv := range it.ColumnValues {
			title, text := cv.Column.Title, strings.TrimSpace(cv.Text)
			if d, ok := parseConcertTitle(title); ok {
				e.Concerts[d] = roster.Status(text)
				continue
			}
			switch title {
			case ColumnVoicePart:
				e.VoicePart = text
			case ColumnEmail:
				e.Email = text
			case ColumnChorusEmails:
				e.ChorusEmails = text
			default:
				e.Fields[title] = text
			}
		}
		r.Entries = append(r.Entries, e)
	}
	return r, nil
}

func parseCandidates(b board) []member.Candidate {
	out := make([]member.Candidate, 0, len(b.ItemsPage.Items))
	for _, it := range b.ItemsPage.Items {
		c := member.Candidate{Name: strings.TrimSpace(it.Name)}
		if it.Group != nil {
			c.Group = strings.TrimSpace(it.Group.Title)
		}
		for _, cv := range it.ColumnValues {
			title := strings.ToLower(cv.Column.Title)
			switch {
			case strings.Contains(title, "email"):
				c.Email = strings.TrimSpace(cv.Text)
			case strings.Contains(title, "result"):
				c.Result = strings.TrimSpace(cv.Text)
			}
		}
		out = append(out, c)
	}
	return out
}
