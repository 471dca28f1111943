package choirgenius

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/member"
	"choirreport/internal/domain/season"
)

const exportDateLayout = "01-02-2006"

// normalizeLines converts the export's bare carriage returns to newlines.
func normalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// parseGridExport reads an attendance grid CSV. The export opens with two
// presentation lines, and its header row leaves the name column blank.
// Date columns are MM-DD-YYYY; cells are 1, 0 or blank.
// POST: Dates are sorted; marks outside 1/0/blank fail with attendance.ErrBadMark
func parseGridExport(text string) (attendance.Sheet, error) {
	lines := strings.SplitN(normalizeLines(text), "\n", 3)
	if len(lines) < 3 {
		return attendance.Sheet{}, fmt.Errorf("%w: grid export has no header row", ErrExport)
	}
	r := csv.NewReader(strings.NewReader("Name" + lines[2]))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return attendance.Sheet{}, fmt.Errorf("%w: grid header: %w", ErrExport, err)
	}
	var sheet attendance.Sheet
	dateCols := make(map[int]season.Date)
	for i, col := range header {
		col = strings.TrimSpace(col)
		if i == 0 || col == "" || col[0] < '0' || col[0] > '9' {
			continue
		}
		d, err := season.ParseDate(exportDateLayout, col)
		if err != nil {
			return attendance.Sheet{}, err
		}
		dateCols[i] = d
		sheet.Dates = append(sheet.Dates, d)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return attendance.Sheet{}, fmt.Errorf("%w: grid row: %w", ErrExport, err)
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		rec := attendance.Record{Name: name, Marks: make(map[season.Date]attendance.Mark, len(dateCols))}
		for i, d := range dateCols {
			if i >= len(row) {
				continue
			}
			m, err := attendance.ParseMark(row[i])
			if err != nil {
				return attendance.Sheet{}, fmt.Errorf("%s on %s: %w", name, d, err)
			}
			rec.Marks[d] = m
		}
		sheet.Records = append(sheet.Records, rec)
	}
	sheet.Sort()
	return sheet, nil
}

// Member export columns, matched after lowercasing and replacing spaces with underscores.
const (
	colWholeName    = "whole_name"
	colPrimaryEmail = "primary_email"
	colVoicePart    = "voice_part"
	colStatus       = "status"
)

// parseMembersExport reads the account export. Rows with a status column
// other than "active" are marked inactive.
func parseMembersExport(text string) ([]member.Member, error) {
	r := csv.NewReader(strings.NewReader(normalizeLines(text)))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: members header: %w", ErrExport, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")] = i
	}
	if _, ok := idx[colWholeName]; !ok {
		return nil, fmt.Errorf("%w: members export has no %s column", ErrExport, colWholeName)
	}
	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []member.Member
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: members row: %w", ErrExport, err)
		}
		m := member.Member{
			WholeName:    field(row, colWholeName),
			PrimaryEmail: field(row, colPrimaryEmail),
			VoicePart:    field(row, colVoicePart),
			Active:       true,
		}
		if status := field(row, colStatus); status != "" {
			m.Active = strings.EqualFold(status, "active")
		}
		if m.Validate() != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
