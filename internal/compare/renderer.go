package compare

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Renderer serializes a Result for export.
type Renderer interface {
	Render(r *Result) ([]byte, error)
	Extension() string
}

// ExportBaseName is the default file name of an export, without extension.
const ExportBaseName = "contract-comparison"

// ExportFileName returns the default file name for an export with extension ext.
func ExportFileName(ext string) string {
	return ExportBaseName + "." + ext
}

// RendererFor returns the renderer for format ("csv", "md"/"markdown", "json").
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "csv":
		return &CSVRenderer{}, nil
	case "md", "markdown":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// CSVRenderer writes each section as a title line, a header row and its
// rows, separated by a blank line. A summary is appended as a quoted cell.
// Output is a pure function of the result.
type CSVRenderer struct{}

func (CSVRenderer) Extension() string { return "csv" }

func (CSVRenderer) Render(r *Result) ([]byte, error) {
	if r == nil || len(r.Sections) == 0 {
		return nil, ErrNoResult
	}
	var sb strings.Builder
	for i, sec := range r.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(sec.Title)
		if len(sec.Headers) > 0 {
			sb.WriteByte('\n')
			writeCSVRow(&sb, sec.Headers)
		}
		for _, row := range sec.Rows {
			sb.WriteByte('\n')
			writeCSVRow(&sb, row)
		}
	}
	if r.Summary != "" {
		sb.WriteString("\n\n\nSummary\n")
		sb.WriteString(`"` + strings.ReplaceAll(r.Summary, `"`, `""`) + `"`)
	}
	return []byte(sb.String()), nil
}

func writeCSVRow(sb *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(QuoteCSV(c))
	}
}

// QuoteCSV wraps cell in double quotes, doubling inner quotes, when it holds
// a comma, a quote or a line break. Other cells are returned as they are.
func QuoteCSV(cell string) string {
	if !strings.ContainsAny(cell, ",\"\r\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// MarkdownRenderer renders the summary and pipe tables.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Extension() string { return "md" }

func (MarkdownRenderer) Render(r *Result) ([]byte, error) {
	if r.Empty() {
		return nil, ErrNoResult
	}
	var sb strings.Builder
	sb.WriteString("# Contract Comparison\n\n")

	sb.WriteString("## Summary\n\n")
	if r.Summary == "" {
		sb.WriteString("_No summary available._\n")
	} else {
		sb.WriteString(r.Summary)
		if !strings.HasSuffix(r.Summary, "\n") {
			sb.WriteString("\n")
		}
	}
	if st := r.Statistics; st != nil {
		fmt.Fprintf(&sb, "\n- Matches: %d\n- Mismatches: %d\n- Total: %d\n", st.Matches, st.Mismatches, st.Total)
	}
	sb.WriteString("\n")

	for _, sec := range r.Sections {
		fmt.Fprintf(&sb, "## %s\n\n", sec.Title)
		if len(sec.Headers) == 0 {
			sb.WriteString("_No rows._\n\n")
			continue
		}
		writeMarkdownRow(&sb, sec.Headers)
		seps := make([]string, len(sec.Headers))
		for i := range seps {
			seps[i] = "---"
		}
		writeMarkdownRow(&sb, seps)
		for _, row := range sec.Rows {
			writeMarkdownRow(&sb, row)
		}
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		c = strings.ReplaceAll(c, "\n", " ")
		sb.WriteString(" " + c + " |")
	}
	sb.WriteString("\n")
}

// JSONRenderer renders the canonical result as indented JSON, without the raw
// backend payload.
type JSONRenderer struct{}

func (JSONRenderer) Extension() string { return "json" }

func (JSONRenderer) Render(r *Result) ([]byte, error) {
	if r.Empty() {
		return nil, ErrNoResult
	}
	out := *r
	out.Raw = nil
	return json.MarshalIndent(out, "", "  ")
}
