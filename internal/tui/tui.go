// Package tui provides the interactive Bubble Tea front end: a chat tab, a
// compare tab and a files tab over one session coordinator.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/compare"
	"github.com/fakeyudi/contractdesk/internal/session"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabChat tabID = iota
	tabCompare
	tabFiles
	tabCount
)

var tabNames = [tabCount]string{"Chat", "Compare", "Files"}

func tabForMode(m session.Mode) tabID {
	if m == session.ModeCompare {
		return tabCompare
	}
	return tabChat
}

// ── Messages ────────────────────

// stateMsg carries a fresh coordinator snapshot.
type stateMsg session.State

// noticeMsg is the outcome of a background command.
type noticeMsg struct {
	text string
	err  error
}

// loginRequiredMsg arrives when stored credentials disappear.
type loginRequiredMsg struct{}

// ── Model ────────────────────

// Deps is what the TUI drives.
type Deps struct {
	Coordinator *session.Coordinator
	Comparisons *compare.Orchestrator
	PDF         compare.PDFExporter
	Logger      *zap.Logger
	// LoginRequired fires when credentials are cleared while the TUI runs.
	LoginRequired <-chan struct{}
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	deps Deps
	ctx  context.Context
	log  *zap.Logger

	changed chan struct{}

	state     session.State
	activeTab tabID
	viewports [tabCount]viewport.Model
	input     textinput.Model
	bar       progress.Model
	spin      spinner.Model
	width     int
	height    int
	ready     bool

	category compare.Category
	keyword  string
	notice   string
	isError  bool
}

// New creates a TUI model over deps. Background work runs under ctx.
func New(ctx context.Context, deps Deps) Model {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	in := textinput.New()
	in.Placeholder = "Ask about your contracts, or /help"
	in.Prompt = "› "
	in.CharLimit = 4000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		deps:     deps,
		ctx:      ctx,
		log:      log,
		changed:  make(chan struct{}, 1),
		input:    in,
		bar:      progress.New(progress.WithDefaultGradient()),
		spin:     sp,
		category: compare.CategoryAll,
	}
	m.subscribe()
	m.state = deps.Coordinator.Snapshot()
	m.activeTab = tabForMode(m.state.Session.Mode)
	return m
}

// subscribe wakes the model after coordinator changes without ever blocking
// the coordinator.
func (m *Model) subscribe() {
	ch := m.changed
	m.deps.Coordinator.OnChange(func(session.State) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
}

func (m Model) waitForChange() tea.Cmd {
	ch, c := m.changed, m.deps.Coordinator
	return func() tea.Msg {
		<-ch
		return stateMsg(c.Snapshot())
	}
}

func (m Model) waitForLogout() tea.Cmd {
	ch := m.deps.LoginRequired
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return loginRequiredMsg{}
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.waitForChange(), m.waitForLogout())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			return m.selectTab((m.activeTab + 1) % tabCount)
		case "shift+tab":
			return m.selectTab((m.activeTab - 1 + tabCount) % tabCount)
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			return m.submit(line)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.input.Width = max(m.width-4, 10)
		m.bar.Width = max(m.width-24, 10)
		m.initViewports()
		return m, nil

	case stateMsg:
		m.state = session.State(msg)
		m.refresh()
		return m, m.waitForChange()

	case noticeMsg:
		m.setNotice(msg.text, msg.err)
		m.refresh()
		return m, nil

	case loginRequiredMsg:
		m.setNotice("", fmt.Errorf("signed out: run 'contractdesk login' in another terminal"))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setNotice(text string, err error) {
	m.isError = err != nil
	if err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = text
}

// selectTab moves to t. Moving between chat and compare switches the
// session mode.
func (m Model) selectTab(t tabID) (tea.Model, tea.Cmd) {
	m.activeTab = t
	if t == tabFiles {
		return m, nil
	}
	mode := session.ModeChat
	if t == tabCompare {
		mode = session.ModeCompare
	}
	if mode != m.state.Session.Mode {
		m.deps.Coordinator.SwitchMode(mode)
		m.state = m.deps.Coordinator.Snapshot()
		m.keyword = ""
		m.category = compare.CategoryAll
		m.notice = ""
		m.refresh()
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	// ── Row 1: title bar ──────────────────────────────────────────────────────
	id := m.state.Session.ID
	if id == "" {
		id = "new"
	}
	title := titleStyle.Width(m.width).Render(fmt.Sprintf("  contractdesk  session %s · %s", id, m.state.Session.Mode))

	// ── Row 2: tab bar ────────────────────────────────────────────────────────
	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	// ── Row 3…N-3: scrollable content ────────────────────────────────────────
	content := m.viewports[m.activeTab].View()

	// ── Progress or notice, input, hints ─────────────────────────────────────
	status := m.statusLine()
	input := m.input.View()

	hint := "  tab switch  ↑/↓ scroll  /help commands  esc quit"
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, status, input, statusBar)
}

func (m Model) statusLine() string {
	switch m.state.Status {
	case session.StatusUploading, session.StatusProcessing:
		label := "Uploading"
		if m.state.Status == session.StatusProcessing {
			label = "Processing"
		}
		return fmt.Sprintf("  %s %-10s %s", m.spin.View(), label, m.bar.ViewAs(float64(m.state.Progress)/100))
	}
	if m.state.Busy {
		return "  " + m.spin.View() + " Working…"
	}
	if m.notice != "" {
		if m.isError {
			return errorStyle.Render("  " + m.notice)
		}
		return noticeStyle.Render("  " + m.notice)
	}
	if m.state.Status == session.StatusError {
		return errorStyle.Render("  Upload failed: /retry or /cancel")
	}
	return ""
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title, tabs, status line, input, hints
	vpHeight := m.height - 5
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
	m.viewports[tabChat].GotoBottom()
}

// refresh re-renders every tab after a state change.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	for i := tabID(0); i < tabCount; i++ {
		m.viewports[i].SetContent(m.renderTab(i))
	}
	m.viewports[tabChat].GotoBottom()
}

// ── Background commands ──────────────────────────────────────────────────────

// background runs fn off the event loop and reports its outcome.
func (m Model) background(fn func(ctx context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		text, err := fn(ctx)
		return noticeMsg{text: text, err: err}
	}
}

// ── Run ──────────────────────────────────────────────────────────────────────

// Run starts the TUI and blocks until the user quits or ctx is done. Session
// teardown is left to the caller, which knows how the program ended.
func Run(ctx context.Context, deps Deps) error {
	p := tea.NewProgram(New(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
