package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/contractdesk/internal/blob"
	"github.com/fakeyudi/contractdesk/internal/compare"
	"github.com/fakeyudi/contractdesk/internal/session"
)

const helpText = "/upload <file>...  /compare [category]  /filter [keyword]  /category <name>  " +
	"/export <csv|md|json|pdf> [path]  /remove <file>  /retry  /cancel  /clear  /mode <chat|compare>  /quit"

// command is one parsed slash command.
type command struct {
	name string
	args []string
}

// parseCommand splits a "/name arg..." line. ok is false for plain text.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{name: "help"}, true
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// submit handles one line of input.
func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	cmd, ok := parseCommand(line)
	if !ok {
		if strings.TrimSpace(line) == "" {
			return m, nil
		}
		if m.state.Session.Mode != session.ModeChat {
			m.setNotice("Questions are answered in chat mode. Use /compare to run the comparison.", nil)
			return m, nil
		}
		m.notice = ""
		c := m.deps.Coordinator
		return m, m.background(func(ctx context.Context) (string, error) {
			_, err := c.Send(ctx, line)
			return "", err
		})
	}
	return m.run(cmd)
}

func (m Model) run(cmd command) (tea.Model, tea.Cmd) {
	c := m.deps.Coordinator
	switch cmd.name {
	case "help", "h", "?":
		m.setNotice(helpText, nil)

	case "quit", "q", "exit":
		return m, tea.Quit

	case "upload", "u":
		if len(cmd.args) == 0 {
			m.setNotice("", errors.New("usage: /upload <file>..."))
			return m, nil
		}
		files := make([]blob.File, 0, len(cmd.args))
		for _, p := range cmd.args {
			f, err := blob.FromPath(p)
			if err != nil {
				m.setNotice("", err)
				return m, nil
			}
			files = append(files, f)
		}
		m.notice = ""
		return m, m.background(func(ctx context.Context) (string, error) {
			if err := c.SelectFiles(ctx, files); err != nil {
				return "", err
			}
			return fmt.Sprintf("Uploaded %d file(s).", len(files)), nil
		})

	case "compare":
		category := compare.CategoryAll
		if len(cmd.args) > 0 {
			cat, err := compare.ParseCategory(cmd.args[0])
			if err != nil {
				m.setNotice("", err)
				return m, nil
			}
			category = cat
		}
		m.activeTab = tabCompare
		m.notice = ""
		return m, m.background(func(ctx context.Context) (string, error) {
			if _, err := c.Compare(ctx, category); err != nil {
				return "", err
			}
			return "Comparison complete.", nil
		})

	case "filter", "f":
		m.keyword = strings.Join(cmd.args, " ")
		m.activeTab = tabCompare
		m.notice = ""
		m.refresh()

	case "category", "cat":
		cat, err := compare.ParseCategory(strings.Join(cmd.args, ""))
		if err != nil {
			m.setNotice("", err)
			return m, nil
		}
		m.category = cat
		m.activeTab = tabCompare
		m.notice = ""
		m.refresh()

	case "export":
		return m.export(cmd.args)

	case "remove", "rm":
		if len(cmd.args) == 0 {
			m.setNotice("", errors.New("usage: /remove <file>"))
			return m, nil
		}
		if err := c.RemoveFile(strings.Join(cmd.args, " ")); err != nil {
			m.setNotice("", err)
			return m, nil
		}
		m.setNotice("Removed "+strings.Join(cmd.args, " ")+".", nil)

	case "retry":
		c.Retry()
		m.notice = ""

	case "cancel":
		c.Cancel()
		m.setNotice("Upload cancelled.", nil)

	case "clear":
		m.keyword = ""
		return m, m.background(func(ctx context.Context) (string, error) {
			c.Clear(ctx)
			return "Session cleared.", nil
		})

	case "mode":
		if len(cmd.args) == 0 {
			m.setNotice("Current mode: "+string(m.state.Session.Mode), nil)
			return m, nil
		}
		mode, ok := session.ParseMode(cmd.args[0])
		if !ok {
			m.setNotice("", fmt.Errorf("unknown mode %q (chat or compare)", cmd.args[0]))
			return m, nil
		}
		return m.selectTab(tabForMode(mode))

	default:
		m.setNotice("", fmt.Errorf("unknown command /%s; /help lists commands", cmd.name))
	}
	return m, nil
}

// export writes the session's comparison in format to a file.
func (m Model) export(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.setNotice("", errors.New("usage: /export <csv|md|json|pdf> [path]"))
		return m, nil
	}
	format := strings.ToLower(args[0])
	id := m.state.Session.ID
	orch, pdf := m.deps.Comparisons, m.deps.PDF

	var rd compare.Renderer
	ext := "pdf"
	if format != "pdf" {
		r, err := compare.RendererFor(format)
		if err != nil {
			m.setNotice("", err)
			return m, nil
		}
		rd, ext = r, r.Extension()
	}
	path := compare.ExportFileName(ext)
	if len(args) > 1 {
		path = args[1]
	}

	return m, m.background(func(ctx context.Context) (string, error) {
		var data []byte
		var err error
		if rd != nil {
			data, err = orch.Export(id, rd)
		} else if pdf == nil {
			return "", errors.New("PDF export is not available")
		} else {
			data, err = orch.ExportPDF(ctx, id, pdf)
		}
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", err
		}
		return "Exported to " + path, nil
	})
}
