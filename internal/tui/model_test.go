package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ctrlr/internal/catalog"
	"ctrlr/internal/client"
	"ctrlr/internal/models"

	tea "github.com/charmbracelet/bubbletea"
)

type stubBackend struct {
	convertErr error
	targets    []string
}

func (s *stubBackend) Convert(ctx context.Context, f client.File, target string) (string, error) {
	s.targets = append(s.targets, target)
	if s.convertErr != nil {
		return "", s.convertErr
	}
	return "/converted/1-a." + target, nil
}

func (s *stubBackend) Summarize(ctx context.Context, link, target string) (string, error) {
	return "# Memo\nBudget for 1997.", nil
}

func (s *stubBackend) Chat(ctx context.Context, link, target, q string, h []models.ChatTurn) (string, error) {
	return "About money.", nil
}

func (s *stubBackend) ResolveURL(link string) string { return "http://localhost:3001" + link }

func newModel(t *testing.T, b client.Backend) *Model {
	t.Helper()
	s := client.NewSession(b, catalog.Default(), client.Options{
		Features:  client.AllFeatures(),
		Clipboard: func(string) error { return nil },
		Opener:    func(string) error { return nil },
	})
	return New(s, catalog.Default().Version())
}

func legacyFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo.wpd")
	if err := os.WriteFile(path, []byte("wpd bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *Model, key tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: key})
	return cmd
}

func pressRune(m *Model, r rune) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return cmd
}

// drain runs cmd and feeds back the relay results it produces.
func drain(m *Model, cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case conversionDoneMsg, summaryDoneMsg, answerDoneMsg:
			_, next := m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func pickAndConvert(t *testing.T, m *Model) {
	t.Helper()
	typeText(m, legacyFile(t))
	press(m, tea.KeyEnter)
	if got := m.session.Snapshot().Stage; got != client.StageUpload {
		t.Fatalf("stage after pick = %v", got)
	}
	press(m, tea.KeyEnter)
	if got := m.session.Snapshot().Stage; got != client.StageSelectingFormat {
		t.Fatalf("stage after enter = %v", got)
	}
	drain(m, press(m, tea.KeyEnter))
}

func TestPickAndConvert(t *testing.T) {
	b := &stubBackend{}
	m := newModel(t, b)
	pickAndConvert(t, m)

	snap := m.session.Snapshot()
	if snap.Stage != client.StageConverted {
		t.Fatalf("expected converted, got %v", snap.Stage)
	}
	if len(b.targets) != 1 || b.targets[0] != "pdf" {
		t.Fatalf("expected one pdf conversion, got %v", b.targets)
	}
	view := m.View()
	if !strings.Contains(view, "Converted to PDF") || !strings.Contains(view, "/converted/1-a.pdf") {
		t.Fatalf("view missing result:\n%s", view)
	}
	if !strings.Contains(view, "memo.wpd") {
		t.Fatalf("view missing file card:\n%s", view)
	}
}

func TestFormatCursorSelectsTarget(t *testing.T) {
	b := &stubBackend{}
	m := newModel(t, b)
	typeText(m, legacyFile(t))
	press(m, tea.KeyEnter)
	press(m, tea.KeyEnter)

	press(m, tea.KeyDown)
	snap := m.session.Snapshot()
	want := snap.Candidates[m.cursor]
	if snap.TargetFormat != want {
		t.Fatalf("target = %s, want %s", snap.TargetFormat, want)
	}
	drain(m, press(m, tea.KeyEnter))
	if b.targets[0] != want {
		t.Fatalf("converted to %s, want %s", b.targets[0], want)
	}
}

func TestConversionFailureShowsError(t *testing.T) {
	m := newModel(t, &stubBackend{convertErr: errors.New("Conversion failed")})
	pickAndConvert(t, m)

	if got := m.session.Snapshot().Stage; got != client.StageFailed {
		t.Fatalf("expected failed, got %v", got)
	}
	if !strings.Contains(m.View(), "Conversion failed") {
		t.Fatalf("view missing error:\n%s", m.View())
	}
}

func TestSummaryAndQuestion(t *testing.T) {
	m := newModel(t, &stubBackend{})
	pickAndConvert(t, m)

	drain(m, pressRune(m, 's'))
	if m.session.Snapshot().Summary == "" {
		t.Fatal("expected a summary")
	}

	pressRune(m, 'a')
	if m.mode != modeQuestion {
		t.Fatalf("expected question mode, got %v", m.mode)
	}
	typeText(m, "what is it about?")
	drain(m, press(m, tea.KeyEnter))

	history := m.session.Snapshot().History
	if len(history) != 2 || history[1].Text != "About money." {
		t.Fatalf("unexpected history %+v", history)
	}
	if !strings.Contains(m.View(), "About money.") {
		t.Fatalf("view missing answer:\n%s", m.View())
	}
}

func TestCopyLink(t *testing.T) {
	m := newModel(t, &stubBackend{})
	pickAndConvert(t, m)

	if cmd := pressRune(m, 'c'); cmd == nil {
		t.Fatal("expected a timer command for the copied flag")
	}
	if !strings.Contains(m.View(), "Copied!") {
		t.Fatalf("view missing copied flag:\n%s", m.View())
	}
}

func TestMissingPathReported(t *testing.T) {
	m := newModel(t, &stubBackend{})
	typeText(m, filepath.Join(t.TempDir(), "missing.doc"))
	press(m, tea.KeyEnter)

	if m.session.Snapshot().File != nil {
		t.Fatal("missing file should not be picked")
	}
	if m.status == "" {
		t.Fatal("expected a status message")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome(`"~/docs/a.wpd"`); got != filepath.Join(home, "docs/a.wpd") {
		t.Fatalf("expandHome = %s", got)
	}
	if got := expandHome("/tmp/a.wpd"); got != "/tmp/a.wpd" {
		t.Fatalf("expandHome = %s", got)
	}
}

func TestOpenPreview(t *testing.T) {
	var opened string
	s := client.NewSession(&stubBackend{}, catalog.Default(), client.Options{
		Features:  client.AllFeatures(),
		Clipboard: func(string) error { return nil },
		Opener:    func(v string) error { opened = v; return nil },
	})
	m := New(s, catalog.Default().Version())
	pickAndConvert(t, m)

	pressRune(m, 'o')
	if opened != "http://localhost:3001/converted/1-a.pdf" {
		t.Fatalf("opened %q", opened)
	}
	if !strings.Contains(m.status, "Opened") {
		t.Fatalf("unexpected status %q", m.status)
	}
}
