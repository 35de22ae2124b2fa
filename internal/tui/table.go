package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fakeyudi/contractdesk/internal/compare"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
	positiveStyle    = cellStyle.Foreground(lipgloss.Color("82"))
	negativeStyle    = cellStyle.Foreground(lipgloss.Color("196")).Bold(true)
)

// toneStyle maps a cell's tone to its style.
func toneStyle(t compare.Tone) lipgloss.Style {
	switch t {
	case compare.TonePositive:
		return positiveStyle
	case compare.ToneNegative:
		return negativeStyle
	}
	return cellStyle
}

// RenderSection draws sec as a bordered table with differences in red and
// matches in green. width 0 lets the table size itself.
func RenderSection(sec compare.Section, width int) string {
	var sb strings.Builder
	sb.WriteString(sectionHeader.Render("  "+sec.Title) + "\n")
	if len(sec.Rows) == 0 {
		sb.WriteString(dimStyle.Render("  "+compare.NoResults) + "\n")
		return sb.String()
	}

	rows := sec.Rows
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(sec.Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if row < 0 || row >= len(rows) || col >= len(rows[row]) {
				return cellStyle
			}
			return toneStyle(compare.CellTone(rows[row][col]))
		})
	if width > 0 {
		t = t.Width(width)
	}
	sb.WriteString(t.Render() + "\n")
	return sb.String()
}

// RenderResult draws the summary and every section of r after applying the
// category and keyword filters.
func RenderResult(r *compare.Result, c compare.Category, keyword string, width int) string {
	if r == nil {
		return dimStyle.Render("  No comparison yet.") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(heading("Summary"))
	if s := strings.TrimSpace(r.Summary); s != "" {
		wrap := lipgloss.NewStyle().PaddingLeft(2)
		if width > 4 {
			wrap = wrap.Width(width - 2)
		}
		sb.WriteString(wrap.Render(s) + "\n")
	} else {
		sb.WriteString(dimStyle.Render("  No summary available.") + "\n")
	}
	if st := r.Statistics; st != nil {
		sb.WriteString("\n" + labelStyle.Render("  Matches:") + fmt.Sprintf(" %d  ", st.Matches) +
			labelStyle.Render("Mismatches:") + fmt.Sprintf(" %d  ", st.Mismatches) +
			labelStyle.Render("Total:") + fmt.Sprintf(" %d", st.Total) + "\n")
	}
	for _, sec := range compare.FilterResult(r, c, keyword) {
		sb.WriteString("\n")
		sb.WriteString(RenderSection(sec, width))
	}
	return sb.String()
}
