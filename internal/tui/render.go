package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/contractdesk/internal/session"
)

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabChat:
		return m.renderChat()
	case tabCompare:
		return m.renderCompare()
	case tabFiles:
		return m.renderFiles()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderChat() string {
	var sb strings.Builder
	if m.state.Session.Mode != session.ModeChat {
		sb.WriteString(heading("Chat"))
		sb.WriteString(dimStyle.Render("  Switch to this tab's mode to ask questions; the current compare session will be discarded.") + "\n")
		return sb.String()
	}
	sb.WriteString(heading(fmt.Sprintf("Chat · %d document(s)", len(m.state.Session.Files))))

	body := lipgloss.NewStyle().PaddingLeft(4)
	if m.width > 8 {
		body = body.Width(m.width - 4)
	}
	for _, msg := range m.state.Session.Messages {
		who := assistantStyle.Render("Assistant")
		if msg.Role == "user" {
			who = userStyle.Render("You")
		}
		ts := ""
		if !msg.Timestamp.IsZero() {
			ts = timeStyle.Render(msg.Timestamp.Format("15:04:05")) + "  "
		}
		sb.WriteString("  " + ts + who + "\n")
		sb.WriteString(body.Render(msg.Content) + "\n\n")
	}
	if m.state.Busy {
		sb.WriteString(dimStyle.Render("  Assistant is thinking…") + "\n")
	}
	return sb.String()
}

func (m *Model) renderCompare() string {
	var sb strings.Builder
	s := m.state.Session
	if s.Mode != session.ModeCompare {
		sb.WriteString(heading("Compare"))
		sb.WriteString(dimStyle.Render("  Switch to this tab's mode to compare two contracts; the current chat session will be discarded.") + "\n")
		return sb.String()
	}

	sb.WriteString(heading("Contracts"))
	for i, slot := range []string{"Contract A", "Contract B"} {
		name := dimStyle.Render("(empty)")
		if i < len(s.Files) {
			name = s.Files[i].Name
		}
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-12s", slot)) + "  " + name + "\n")
	}
	if m.category != "" || m.keyword != "" {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-12s", "Filter")) + "  " + string(m.category))
		if m.keyword != "" {
			sb.WriteString(" · " + fmt.Sprintf("%q", m.keyword))
		}
		sb.WriteString("\n")
	}

	switch {
	case s.Comparison != nil:
		sb.WriteString(RenderResult(s.Comparison, m.category, m.keyword, m.width-2))
	case len(s.Files) < session.MaxFiles:
		sb.WriteString("\n" + dimStyle.Render("  Upload two contracts with /upload, then run /compare.") + "\n")
	default:
		sb.WriteString("\n" + dimStyle.Render("  Ready. Run /compare [all|product|project|service].") + "\n")
	}
	return sb.String()
}

func (m *Model) renderFiles() string {
	var sb strings.Builder
	s := m.state.Session
	sb.WriteString(heading("Session"))
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	id := s.ID
	if id == "" {
		id = dimStyle.Render("(none yet)")
	}
	row("Session:", id)
	row("Mode:", string(s.Mode))
	row("Status:", string(m.state.Status))
	if !s.CreatedAt.IsZero() {
		row("Created:", s.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}

	sb.WriteString(heading(fmt.Sprintf("Documents (%d/%d)", len(s.Files), session.MaxFiles)))
	if len(s.Files) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, f := range s.Files {
		num := dimStyle.Render(fmt.Sprintf("  %3d.", i+1))
		sb.WriteString(num + "  " + f.Name + dimStyle.Render(fmt.Sprintf("  %s", humanSize(f.Size))) + "\n")
		sb.WriteString(dimStyle.Render("        "+f.RemoteURL) + "\n\n")
	}
	return sb.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
