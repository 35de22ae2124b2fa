package compare

import "strings"

// NoResults is the placeholder shown when a filter leaves a section empty.
const NoResults = "No results match the current filter."

// Filter keeps the rows of sec in which some cell contains keyword,
// case-insensitively. A blank keyword returns sec unchanged.
func Filter(sec Section, keyword string) Section {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return sec
	}
	out := Section{Title: sec.Title, Headers: sec.Headers}
	for _, row := range sec.Rows {
		for _, cell := range row {
			if strings.Contains(strings.ToLower(cell), keyword) {
				out.Rows = append(out.Rows, row)
				break
			}
		}
	}
	return out
}

// FilterCategory narrows sec to rows mentioning c. CategoryAll is the
// identity. This only trims what is already rendered; the backend applies the
// real category filter.
func FilterCategory(sec Section, c Category) Section {
	if c == CategoryAll || c == "" {
		return sec
	}
	return Filter(sec, string(c))
}

// FilterResult applies the category and keyword filters to every section.
func FilterResult(r *Result, c Category, keyword string) []Section {
	if r == nil {
		return nil
	}
	out := make([]Section, 0, len(r.Sections))
	for _, sec := range r.Sections {
		out = append(out, Filter(FilterCategory(sec, c), keyword))
	}
	return out
}

// Tone classifies a cell for highlighting.
type Tone int

const (
	ToneNeutral Tone = iota
	TonePositive
	ToneNegative
)

// CellTone reports how a cell should be highlighted. Wording is checked
// before percentages, and differences win over matches.
func CellTone(cell string) Tone {
	lower := strings.ToLower(cell)
	switch {
	case containsAny(lower, "different", "mismatch", "removed", "added"):
		return ToneNegative
	case containsAny(lower, "identical", "same", "match"):
		return TonePositive
	case strings.Contains(cell, "%") && strings.Contains(cell, "-"):
		return ToneNegative
	case strings.Contains(cell, "%"):
		return TonePositive
	}
	return ToneNeutral
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
