package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"sort"

	"choirreport/internal/application/projections"
)

// None is rendered in place of an empty list or table.
const None = "None"

//go:embed templates/*.html
var templateFS embed.FS

// templates is assigned in init: its funcs render through execute, which reads it.
var templates *template.Template

func init() {
	templates = template.Must(template.New("render").Funcs(template.FuncMap{
		"actionItem":      ActionItem,
		"singersIndented": SingersIndented,
		"safeColor":       safeColor,
		"headerStyle":     func() template.CSS { return headerStyle },
		"rowBackground":   rowBackground,
		"cellStyle":       cellStyle,
	}).ParseFS(templateFS, "templates/*.html"))
}

const headerStyle template.CSS = "font-weight: bold; font-size: 1.25rem; text-align: center; " +
	"padding: 0.5rem 1rem; background-color: rgba(12, 100, 192, 0.125);"

var colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]+)$`)

// safeColor passes through hex and named colors; anything else renders black.
func safeColor(c string) template.CSS {
	if !colorPattern.MatchString(c) {
		return template.CSS(projections.DefaultColor)
	}
	return template.CSS(c)
}

func rowBackground(i int) template.CSS {
	if i%2 == 0 {
		return "white"
	}
	return "#eee"
}

func cellStyle(col int, c Cell) template.CSS {
	weight := "normal"
	if col == 0 {
		weight = "bold"
	}
	if c.Color != "" {
		return template.CSS(fmt.Sprintf("padding: 0.5rem 2rem; color: white; background-color: %s; text-align: center; font-weight: %s;",
			safeColor(c.Color), weight))
	}
	align := "left"
	if c.Numeric {
		align = "center"
	}
	return template.CSS(fmt.Sprintf("padding: 0.5rem 1rem; color: black; text-align: %s; font-weight: %s;", align, weight))
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

// ActionItem highlights a call to action. msg is trusted markup.
func ActionItem(msg string) (template.HTML, error) {
	return execute("action_item", template.HTML(msg))
}

// SingersOneLine renders singers as colored mailto buttons, or None when empty.
func SingersOneLine(rows []*projections.Row) (template.HTML, error) {
	return execute("singers_oneline", rows)
}

// SingersIndented renders SingersOneLine inside an indented paragraph.
func SingersIndented(rows []*projections.Row) (template.HTML, error) {
	line, err := SingersOneLine(rows)
	if err != nil {
		return "", err
	}
	return execute("singers_indented", line)
}

// Cell is one table cell.
type Cell struct {
	Text    string
	HTML    template.HTML // pre-rendered content; wins over Text
	Email   string        // renders Text as a mailto link
	Color   string        // voice-part background
	Numeric bool
}

// TableData describes a table. The first header is always rendered blank.
type TableData struct {
	Headers []string
	Rows    [][]Cell
	Totals  []int // one per column after the first; nil for no totals row
}

// Table renders a striped table with a bold first column.
func Table(t TableData) (template.HTML, error) {
	return execute("table", t)
}

// Column names a per-singer attribute for SingerTable.
type Column string

// SingerTable columns.
const (
	ColName      Column = "Name"
	ColVoicePart Column = "Voice Part"
	ColEmail     Column = "Email"
	ColExcused   Column = "Excused"
)

// SingerTable renders one row per singer with the given columns. Name links
// to the singer's email and Voice Part is colored by section.
func SingerTable[T interface{ Base() *projections.Row }](rows []T, cols []Column, extra func(T, Column) string) (template.HTML, error) {
	t := TableData{}
	for _, item := range rows {
		r := item.Base()
		cells := make([]Cell, len(cols))
		for i, c := range cols {
			switch c {
			case ColName:
				cells[i] = Cell{Text: r.Name, Email: r.Email}
			case ColVoicePart:
				cells[i] = Cell{Text: r.VoicePart, Color: r.Color}
			case ColEmail:
				cells[i] = Cell{Text: r.Email}
			default:
				if extra != nil {
					cells[i] = Cell{Text: extra(item, c)}
				}
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	return Table(t)
}

// Subtotal is one counted column of a subtotals table.
type Subtotal[T any] struct {
	Label string
	Has   func(T) bool
}

type sectionKey struct {
	label   string
	sortKey float64
	color   string
}

type section struct {
	sectionKey
	counts []int
}

// SubtotalsTable counts each subtotal per (voice part, sort key, color),
// ordered by section, with a totals row.
func SubtotalsTable[T interface{ Base() *projections.Row }](rows []T, subtotals ...Subtotal[T]) (template.HTML, error) {
	bySection := make(map[sectionKey]*section)
	var sections []*section
	for _, item := range rows {
		r := item.Base()
		key := sectionKey{label: r.VoicePart, sortKey: r.SortKey, color: r.Color}
		s, ok := bySection[key]
		if !ok {
			s = &section{sectionKey: key, counts: make([]int, len(subtotals))}
			bySection[key] = s
			sections = append(sections, s)
		}
		for i, st := range subtotals {
			if st.Has(item) {
				s.counts[i]++
			}
		}
	}
	sort.SliceStable(sections, func(i, j int) bool {
		if sections[i].sortKey != sections[j].sortKey {
			return sections[i].sortKey < sections[j].sortKey
		}
		if sections[i].label != sections[j].label {
			return sections[i].label < sections[j].label
		}
		return sections[i].color < sections[j].color
	})

	t := TableData{Headers: []string{string(ColVoicePart)}, Totals: make([]int, len(subtotals))}
	for _, st := range subtotals {
		t.Headers = append(t.Headers, st.Label)
	}
	for _, s := range sections {
		cells := []Cell{{Text: s.label, Color: s.color}}
		for i, n := range s.counts {
			cells = append(cells, Cell{Text: fmt.Sprint(n), Numeric: true})
			t.Totals[i] += n
		}
		t.Rows = append(t.Rows, cells)
	}
	return Table(t)
}

type absenceKey struct {
	total, actual, projected int
}

// AbsenceTotals groups singers by (total, actual, projected) absences, most
// absences first, listing each group's singers as mailto buttons.
func AbsenceTotals(rows []*projections.AttendanceRow) (template.HTML, error) {
	groups := make(map[absenceKey][]*projections.Row)
	var keys []absenceKey
	for _, r := range rows {
		k := absenceKey{r.AbsencesTotal, r.AbsencesActual, r.AbsencesProjected}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r.Row)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.total != b.total {
			return a.total > b.total
		}
		if a.actual != b.actual {
			return a.actual > b.actual
		}
		return a.projected > b.projected
	})

	t := TableData{Headers: []string{"Total", "Actual", "Projected", "Singers (click to email)"}}
	for _, k := range keys {
		singers := groups[k]
		projections.SortRows(singers)
		names, err := SingersOneLine(singers)
		if err != nil {
			return "", err
		}
		t.Rows = append(t.Rows, []Cell{
			{Text: fmt.Sprint(k.total), Numeric: true},
			{Text: fmt.Sprint(k.actual), Numeric: true},
			{Text: fmt.Sprint(k.projected), Numeric: true},
			{HTML: names},
		})
	}
	return Table(t)
}

// MismatchTable compares a board field with the portal's, or renders None.
func MismatchTable(ms []projections.Mismatch) (template.HTML, error) {
	if len(ms) == 0 {
		return None, nil
	}
	t := TableData{Headers: []string{"Name", "Monday", "ChoirGenius"}}
	for _, m := range ms {
		t.Rows = append(t.Rows, []Cell{
			{Text: m.Row.Name, Email: m.Row.Email},
			{Text: m.Board},
			{Text: m.Portal},
		})
	}
	return Table(t)
}

// ProjectedAbsences renders who is marked absent and who has not answered.
func ProjectedAbsences(p projections.ProjectedAbsences) (template.HTML, error) {
	return execute("projected_absences", p)
}
