// Package tui is the terminal front end for the conversion relay.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ctrlr/internal/client"
	"ctrlr/internal/models"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type inputMode int

const (
	modeNone inputMode = iota
	modePath
	modeQuestion
)

type conversionDoneMsg struct{ err error }
type summaryDoneMsg struct{ err error }
type answerDoneMsg struct{ err error }
type copiedExpiredMsg struct{}

// Model drives a client.Session from the keyboard.
type Model struct {
	session  *client.Session
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	version  string

	mode   inputMode
	cursor int
	status string
	width  int
}

func New(session *client.Session, catalogVersion string) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 1024

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(brandPrimary)

	m := &Model{
		session: session,
		input:   ti,
		spinner: sp,
		version: catalogVersion,
		width:   80,
	}
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(76)); err == nil {
		m.renderer = r
	}
	if session.Snapshot().File == nil {
		m.focus(modePath)
	} else {
		m.cursorToTarget()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) focus(mode inputMode) {
	m.mode = mode
	m.input.Reset()
	switch mode {
	case modePath:
		m.input.Placeholder = "path to a legacy file"
		m.input.Focus()
	case modeQuestion:
		m.input.Placeholder = "ask about the file"
		m.input.Focus()
	default:
		m.input.Blur()
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-8)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case conversionDoneMsg:
		m.status = ""
		if errors.Is(msg.err, client.ErrStale) {
			return m, nil
		}
		if m.session.Snapshot().Stage == client.StageFailed {
			m.cursorToTarget()
		}
		return m, nil

	case summaryDoneMsg, answerDoneMsg:
		return m, nil

	case copiedExpiredMsg:
		return m, nil
	}

	if m.mode != modeNone {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) busy() bool {
	snap := m.session.Snapshot()
	return snap.Stage == client.StageConverting || snap.Summarizing || snap.Asking
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.mode != modeNone {
		return m.handleInputKey(msg)
	}

	snap := m.session.Snapshot()
	key := msg.String()
	switch key {
	case "q":
		return m, tea.Quit
	case "n":
		if snap.Stage != client.StageConverting {
			m.session.Reset()
			m.status = ""
			m.focus(modePath)
			return m, textinput.Blink
		}
		return m, nil
	}

	switch snap.Stage {
	case client.StageUpload:
		if key == "enter" {
			if err := m.session.ProceedToOptions(); err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.cursorToTarget()
		}
	case client.StageSelectingFormat, client.StageFailed:
		return m.handleFormatKey(key, snap)
	case client.StageConverted:
		return m.handleResultKey(key, snap)
	}
	return m, nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.mode == modeQuestion || m.session.Snapshot().File != nil {
			m.focus(modeNone)
		}
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		if m.mode == modePath {
			return m.pick(value)
		}
		return m.ask(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) pick(path string) (tea.Model, tea.Cmd) {
	if path == "" {
		return m, nil
	}
	f, err := client.FileFromPath(expandHome(path))
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	m.session.Pick(f)
	m.status = ""
	m.focus(modeNone)
	return m, nil
}

func (m *Model) handleFormatKey(key string, snap client.Snapshot) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.selectCursor(snap)
	case "down", "j":
		if m.cursor < len(snap.Candidates)-1 {
			m.cursor++
		}
		m.selectCursor(snap)
	case "enter":
		return m, tea.Batch(m.spinner.Tick, m.convert())
	}
	return m, nil
}

func (m *Model) selectCursor(snap client.Snapshot) {
	if m.cursor < len(snap.Candidates) {
		if err := m.session.SelectTarget(snap.Candidates[m.cursor]); err != nil {
			m.status = err.Error()
		}
	}
}

func (m *Model) cursorToTarget() {
	snap := m.session.Snapshot()
	for i, c := range snap.Candidates {
		if c == snap.TargetFormat {
			m.cursor = i
			return
		}
	}
	m.cursor = 0
}

func (m *Model) handleResultKey(key string, snap client.Snapshot) (tea.Model, tea.Cmd) {
	switch key {
	case "o":
		if !snap.Features.Preview {
			return m, nil
		}
		link, err := m.session.Preview()
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = "Opened " + link
	case "c":
		if err := m.session.CopyLink(); err != nil {
			m.status = err.Error()
			return m, nil
		}
		return m, tea.Tick(client.CopiedFor, func(time.Time) tea.Msg { return copiedExpiredMsg{} })
	case "s":
		if !snap.Features.Summary || snap.Summarizing {
			return m, nil
		}
		return m, tea.Batch(m.spinner.Tick, m.summarize())
	case "a":
		if snap.Features.Chat && snap.Summary != "" {
			m.focus(modeQuestion)
			return m, textinput.Blink
		}
	case "f":
		if err := m.session.ProceedToOptions(); err == nil {
			m.cursorToTarget()
		}
	}
	return m, nil
}

func (m *Model) ask(question string) (tea.Model, tea.Cmd) {
	if question == "" {
		return m, nil
	}
	m.input.Reset()
	session := m.session
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		_, err := session.Ask(context.Background(), question)
		return answerDoneMsg{err: err}
	})
}

func (m *Model) convert() tea.Cmd {
	session := m.session
	m.status = ""
	return func() tea.Msg {
		return conversionDoneMsg{err: session.StartConversion(context.Background())}
	}
}

func (m *Model) summarize() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		_, err := session.Summarize(context.Background())
		return summaryDoneMsg{err: err}
	}
}

func (m *Model) View() string {
	snap := m.session.Snapshot()
	var b strings.Builder

	b.WriteString(titleStyle.Render("ctrl-r"))
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("legacy file relay, catalog " + m.version))
	b.WriteString("\n\n")

	if snap.File != nil {
		b.WriteString(m.fileCard(snap))
		b.WriteString("\n")
	}

	switch snap.Stage {
	case client.StageSelectingFormat, client.StageFailed:
		b.WriteString(m.formatList(snap))
		if snap.Stage == client.StageFailed {
			b.WriteString(errorStyle.Render("Conversion failed: " + snap.Error))
			b.WriteString("\n")
		}
	case client.StageConverting:
		fmt.Fprintf(&b, "%s Converting %s to %s...\n", m.spinner.View(), snap.File.Name, strings.ToUpper(snap.TargetFormat))
	case client.StageConverted:
		b.WriteString(m.result(snap))
	}

	if m.mode != modeNone {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.help(snap)))
	return b.String()
}

func (m *Model) fileCard(snap client.Snapshot) string {
	lines := []string{
		selectedStyle.Render(snap.File.Name),
		snap.Label,
		dimStyle.Render(snap.Description),
		fmt.Sprintf("%s  |  %s", client.FormatBytes(snap.File.Size), client.CreatedLabel(snap.File.LastModified)),
	}
	return cardStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func (m *Model) formatList(snap client.Snapshot) string {
	var b strings.Builder
	b.WriteString("Convert to:\n")
	for i, c := range snap.Candidates {
		line := "  " + strings.ToUpper(c)
		if i == m.cursor {
			line = selectedStyle.Render("> " + strings.ToUpper(c))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) result(snap client.Snapshot) string {
	var b strings.Builder
	b.WriteString(successStyle.Render("Converted to " + strings.ToUpper(snap.TargetFormat)))
	b.WriteString("\n")
	b.WriteString(snap.ResultURL)
	if snap.Copied {
		b.WriteString("  ")
		b.WriteString(successStyle.Render("Copied!"))
	}
	b.WriteString("\n")

	if snap.Summarizing {
		fmt.Fprintf(&b, "\n%s Summarizing...\n", m.spinner.View())
	}
	if snap.Summary != "" {
		b.WriteString("\n")
		b.WriteString(m.markdown(snap.Summary))
	}
	for _, turn := range snap.History {
		b.WriteString(renderTurn(turn))
	}
	if snap.Asking {
		fmt.Fprintf(&b, "%s Thinking...\n", m.spinner.View())
	}
	if snap.AIError != "" {
		b.WriteString(errorStyle.Render(snap.AIError))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTurn(turn models.ChatTurn) string {
	if turn.Speaker == models.RoleUser {
		return userStyle.Render("you: ") + turn.Text + "\n"
	}
	return assistantStyle.Render("ctrl-r: ") + turn.Text + "\n"
}

func (m *Model) markdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (m *Model) help(snap client.Snapshot) string {
	if m.mode == modePath {
		return "enter: pick file  ctrl+c: quit"
	}
	if m.mode == modeQuestion {
		return "enter: ask  esc: done"
	}
	switch snap.Stage {
	case client.StageUpload:
		return "enter: choose format  n: other file  q: quit"
	case client.StageSelectingFormat, client.StageFailed:
		return "up/down: format  enter: convert  n: other file  q: quit"
	case client.StageConverted:
		keys := []string{}
		if snap.Features.Preview {
			keys = append(keys, "o: open")
		}
		keys = append(keys, "c: copy link")
		if snap.Features.Summary {
			keys = append(keys, "s: summarize")
		}
		if snap.Features.Chat && snap.Summary != "" {
			keys = append(keys, "a: ask")
		}
		keys = append(keys, "f: formats", "n: other file", "q: quit")
		return strings.Join(keys, "  ")
	}
	return "ctrl+c: quit"
}
