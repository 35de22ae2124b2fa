package compare

import (
	"regexp"
	"strings"
)

var separatorCell = regexp.MustCompile(`^[-:]+$`)

// Legacy comparison_markdown section markers.
const (
	clauseMarker  = "**📄 Table"
	productMarker = "**📊 Table"
)

// parseMarkdownTable reads the pipe-delimited rows of md into a section.
// Separator rows are skipped and the first remaining row becomes the header.
// Empty cells are dropped, matching how the backend's tables were always read.
func parseMarkdownTable(md, title string) Section {
	sec := Section{Title: title}
	for _, line := range strings.Split(md, "\n") {
		cells, ok := markdownRow(line)
		if !ok {
			continue
		}
		if sec.Headers == nil {
			sec.Headers = cells
			continue
		}
		sec.Rows = append(sec.Rows, cells)
	}
	return sec
}

// markdownRow splits one table line. ok is false for non-table lines,
// separator rows and rows with no cells.
func markdownRow(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "|") {
		return nil, false
	}
	var cells []string
	for _, c := range strings.Split(line, "|") {
		c = strings.TrimSpace(c)
		if c != "" {
			cells = append(cells, c)
		}
	}
	if len(cells) == 0 {
		return nil, false
	}
	sep := true
	for _, c := range cells {
		if !separatorCell.MatchString(c) {
			sep = false
			break
		}
	}
	if sep {
		return nil, false
	}
	return cells, true
}

// splitLegacyMarkdown cuts a comparison_markdown document on its table
// markers. Table rows before the first marker are ignored.
func splitLegacyMarkdown(md string) []Section {
	var (
		sections []Section
		title    string
		buf      strings.Builder
	)
	flush := func() {
		if title == "" {
			return
		}
		sec := parseMarkdownTable(buf.String(), title)
		if len(sec.Headers) > 0 {
			sections = append(sections, sec)
		}
		buf.Reset()
	}
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(trimmed, clauseMarker):
			flush()
			title = ClauseSection
			continue
		case strings.Contains(trimmed, productMarker):
			flush()
			title = ProductSection
			continue
		}
		if title != "" {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	flush()
	return sections
}
