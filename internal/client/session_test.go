package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ctrlr/internal/catalog"
	"ctrlr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	convertFn   func(File, string) (string, error)
	summarizeFn func(link string) (string, error)
	summary     string
	answer      string
	aiErr       error
	histories   [][]models.ChatTurn
	targets     []string
}

func (f *fakeBackend) Convert(ctx context.Context, file File, target string) (string, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	fn := f.convertFn
	f.mu.Unlock()
	if fn != nil {
		return fn(file, target)
	}
	return "/converted/1-abc." + target, nil
}

func (f *fakeBackend) Summarize(ctx context.Context, link, target string) (string, error) {
	if f.summarizeFn != nil {
		return f.summarizeFn(link)
	}
	return f.summary, f.aiErr
}

func (f *fakeBackend) Chat(ctx context.Context, link, target, question string, history []models.ChatTurn) (string, error) {
	f.mu.Lock()
	f.histories = append(f.histories, history)
	f.mu.Unlock()
	return f.answer, f.aiErr
}

func (f *fakeBackend) ResolveURL(link string) string { return "http://relay.test" + link }

func newSession(t *testing.T, b Backend, opts Options) *Session {
	t.Helper()
	if opts.Clipboard == nil {
		opts.Clipboard = func(string) error { return nil }
	}
	if opts.Opener == nil {
		opts.Opener = func(string) error { return nil }
	}
	return NewSession(b, catalog.Default(), opts)
}

func converted(t *testing.T, s *Session) {
	t.Helper()
	s.Pick(File{Path: "/tmp/report.doc", Name: "report.doc", Size: 2048})
	require.NoError(t, s.ProceedToOptions())
	require.NoError(t, s.StartConversion(context.Background()))
	require.Equal(t, StageConverted, s.Snapshot().Stage)
}

func TestPickDefaultsToPDF(t *testing.T) {
	s := newSession(t, &fakeBackend{}, Options{})
	s.Pick(File{Path: "/tmp/LETTER.WPD"})

	snap := s.Snapshot()
	assert.Equal(t, StageUpload, snap.Stage)
	assert.Equal(t, "LETTER.WPD", snap.File.Name)
	assert.Equal(t, "wpd", snap.SourceExt)
	assert.Equal(t, "pdf", snap.TargetFormat)
	assert.NotContains(t, snap.Candidates, "wpd")
	assert.Equal(t, "WordPerfect Document (.wpd)", snap.Label)
}

func TestPickNeverDefaultsToSource(t *testing.T) {
	s := newSession(t, &fakeBackend{}, Options{})
	s.Pick(File{Name: "scan.pdf"})
	snap := s.Snapshot()
	assert.NotEqual(t, "pdf", snap.TargetFormat)
	assert.NotContains(t, snap.Candidates, "pdf")

	s.Pick(File{Name: "README"})
	snap = s.Snapshot()
	assert.Equal(t, "", snap.SourceExt)
	assert.Equal(t, []string{"pdf"}, snap.Candidates)
	assert.Equal(t, "pdf", snap.TargetFormat)
	assert.Equal(t, "Unknown file", snap.Label)
}

func TestProceedRequiresFile(t *testing.T) {
	s := newSession(t, &fakeBackend{}, Options{})
	assert.ErrorIs(t, s.ProceedToOptions(), ErrNoFile)
	assert.ErrorIs(t, s.StartConversion(context.Background()), ErrNoFile)

	s.Pick(File{Name: "a.doc"})
	require.NoError(t, s.ProceedToOptions())
	assert.Equal(t, StageSelectingFormat, s.Snapshot().Stage)
	assert.True(t, s.Snapshot().CanSelectFormat())
}

func TestSelectTargetMustBeOffered(t *testing.T) {
	s := newSession(t, &fakeBackend{}, Options{})
	s.Pick(File{Name: "a.doc"})
	require.NoError(t, s.ProceedToOptions())

	require.NoError(t, s.SelectTarget(".DOCX"))
	assert.Equal(t, "docx", s.Snapshot().TargetFormat)
	assert.ErrorIs(t, s.SelectTarget("doc"), ErrUnknownTarget)
	assert.ErrorIs(t, s.SelectTarget("wpd"), ErrUnknownTarget)
}

func TestConversionSuccess(t *testing.T) {
	b := &fakeBackend{}
	s := newSession(t, b, Options{Features: AllFeatures()})
	converted(t, s)

	snap := s.Snapshot()
	assert.Equal(t, "/converted/1-abc.pdf", snap.ResultURL)
	assert.Empty(t, snap.Error)
	assert.Equal(t, []string{"pdf"}, b.targets)

	link, err := s.OpenResult()
	require.NoError(t, err)
	assert.Equal(t, "http://relay.test/converted/1-abc.pdf", link)
}

func TestConversionFailureAllowsRetry(t *testing.T) {
	fail := true
	b := &fakeBackend{convertFn: func(File, string) (string, error) {
		if fail {
			return "", errors.New("Conversion failed")
		}
		return "/converted/ok.pdf", nil
	}}
	s := newSession(t, b, Options{})
	s.Pick(File{Name: "a.doc"})
	require.NoError(t, s.ProceedToOptions())

	require.Error(t, s.StartConversion(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, StageFailed, snap.Stage)
	assert.Equal(t, "Conversion failed", snap.Error)
	assert.True(t, snap.CanSelectFormat())
	_, err := s.OpenResult()
	assert.ErrorIs(t, err, ErrNotConverted)

	fail = false
	require.NoError(t, s.StartConversion(context.Background()))
	snap = s.Snapshot()
	assert.Equal(t, StageConverted, snap.Stage)
	assert.Empty(t, snap.Error)
}

func TestSelectTargetBlockedWhileConverting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	b := &fakeBackend{convertFn: func(File, string) (string, error) {
		close(started)
		<-release
		return "/converted/x.pdf", nil
	}}
	s := newSession(t, b, Options{})
	s.Pick(File{Name: "a.doc"})
	require.NoError(t, s.ProceedToOptions())

	done := make(chan error, 1)
	go func() { done <- s.StartConversion(context.Background()) }()
	<-started

	snap := s.Snapshot()
	assert.Equal(t, StageConverting, snap.Stage)
	assert.False(t, snap.CanSelectFormat())
	assert.ErrorIs(t, s.SelectTarget("docx"), ErrBusy)
	assert.ErrorIs(t, s.StartConversion(context.Background()), ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestStaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	b := &fakeBackend{convertFn: func(f File, _ string) (string, error) {
		if f.Name == "old.doc" {
			close(started)
			<-release
		}
		return "/converted/" + f.Name + ".pdf", nil
	}}
	s := newSession(t, b, Options{})
	s.Pick(File{Name: "old.doc"})
	require.NoError(t, s.ProceedToOptions())

	done := make(chan error, 1)
	go func() { done <- s.StartConversion(context.Background()) }()
	<-started

	s.Pick(File{Name: "new.doc"})
	close(release)
	assert.ErrorIs(t, <-done, ErrStale)

	snap := s.Snapshot()
	assert.Equal(t, StageUpload, snap.Stage)
	assert.Equal(t, "new.doc", snap.File.Name)
	assert.Empty(t, snap.ResultURL)
}

func TestCopyLinkRaisesTransientFlag(t *testing.T) {
	var copied string
	changes := make(chan struct{}, 16)
	s := newSession(t, &fakeBackend{}, Options{
		Clipboard: func(v string) error { copied = v; return nil },
		OnChange:  func() { changes <- struct{}{} },
	})
	converted(t, s)

	require.NoError(t, s.CopyLink())
	assert.Equal(t, "http://relay.test/converted/1-abc.pdf", copied)
	assert.True(t, s.Snapshot().Copied)

	assert.Eventually(t, func() bool { return !s.Snapshot().Copied }, CopiedFor+time.Second, 50*time.Millisecond)
}

func TestCopyLinkClipboardError(t *testing.T) {
	s := newSession(t, &fakeBackend{}, Options{Clipboard: func(string) error { return errors.New("no display") }})
	converted(t, s)
	require.Error(t, s.CopyLink())
	assert.False(t, s.Snapshot().Copied)
}

func TestSummaryThenChat(t *testing.T) {
	b := &fakeBackend{summary: "A memo about budgets.", answer: "Three items."}
	s := newSession(t, b, Options{Features: AllFeatures()})
	converted(t, s)

	_, err := s.Ask(context.Background(), "how many items?")
	assert.ErrorIs(t, err, ErrNoSummary)

	summary, err := s.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A memo about budgets.", summary)

	_, err = s.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	answer, err := s.Ask(context.Background(), "how many items?")
	require.NoError(t, err)
	assert.Equal(t, "Three items.", answer)
	_, err = s.Ask(context.Background(), "and totals?")
	require.NoError(t, err)

	require.Len(t, b.histories, 2)
	assert.Empty(t, b.histories[0])
	assert.Equal(t, []models.ChatTurn{
		{Speaker: models.RoleUser, Text: "how many items?"},
		{Speaker: models.RoleAssistant, Text: "Three items."},
	}, b.histories[1])
	assert.Len(t, s.Snapshot().History, 4)

	s.Pick(File{Name: "other.doc"})
	snap := s.Snapshot()
	assert.Empty(t, snap.Summary)
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.ResultURL)
}

func TestAIErrorKeepsConvertedStage(t *testing.T) {
	b := &fakeBackend{aiErr: errors.New("assistant unavailable")}
	s := newSession(t, b, Options{Features: AllFeatures()})
	converted(t, s)

	_, err := s.Summarize(context.Background())
	require.Error(t, err)
	snap := s.Snapshot()
	assert.Equal(t, StageConverted, snap.Stage)
	assert.Equal(t, "assistant unavailable", snap.AIError)
	assert.False(t, snap.Summarizing)
}

func TestDisabledFeatures(t *testing.T) {
	s := newSession(t, &fakeBackend{summary: "x"}, Options{Features: Features{Preview: true}})
	converted(t, s)
	_, err := s.Summarize(context.Background())
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	_, err = s.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestReset(t *testing.T) {
	s := newSession(t, &fakeBackend{}, Options{})
	converted(t, s)
	s.Reset()
	snap := s.Snapshot()
	assert.Nil(t, snap.File)
	assert.Equal(t, StageUpload, snap.Stage)
	assert.Empty(t, snap.ResultURL)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "selecting-format", StageSelectingFormat.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}

func TestBackToFormatsAfterConversion(t *testing.T) {
	s := newSession(t, &fakeBackend{summary: "x"}, Options{Features: AllFeatures()})
	converted(t, s)
	_, err := s.Summarize(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ProceedToOptions())
	snap := s.Snapshot()
	assert.Equal(t, StageSelectingFormat, snap.Stage)
	assert.Empty(t, snap.ResultURL)
	assert.Empty(t, snap.Summary)
}

func TestSummaryInFlightDroppedAfterReconversion(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	b := &fakeBackend{summarizeFn: func(link string) (string, error) {
		if link == "/converted/1-abc.pdf" {
			started <- struct{}{}
			<-release
		}
		return "summary of " + link, nil
	}}
	s := newSession(t, b, Options{Features: AllFeatures()})
	converted(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Summarize(context.Background())
		done <- err
	}()
	<-started

	require.NoError(t, s.SelectTarget("docx"))
	require.NoError(t, s.StartConversion(context.Background()))
	close(release)
	assert.ErrorIs(t, <-done, ErrStale)

	snap := s.Snapshot()
	assert.Equal(t, StageConverted, snap.Stage)
	assert.Equal(t, "/converted/1-abc.docx", snap.ResultURL)
	assert.Empty(t, snap.Summary)
	assert.False(t, snap.Summarizing)
	_, err := s.Ask(context.Background(), "what is it?")
	assert.ErrorIs(t, err, ErrNoSummary)

	summary, err := s.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "summary of /converted/1-abc.docx", summary)
}

func TestAnswerInFlightDroppedAfterBackToFormats(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	b := &fakeBackend{summary: "memo"}
	s := newSession(t, b, Options{Features: AllFeatures()})
	converted(t, s)
	_, err := s.Summarize(context.Background())
	require.NoError(t, err)

	blocking := &blockingChat{fakeBackend: b, started: started, release: release}
	s.backend = blocking

	done := make(chan error, 1)
	go func() {
		_, err := s.Ask(context.Background(), "why?")
		done <- err
	}()
	<-started

	require.NoError(t, s.ProceedToOptions())
	close(release)
	assert.ErrorIs(t, <-done, ErrStale)

	snap := s.Snapshot()
	assert.Equal(t, StageSelectingFormat, snap.Stage)
	assert.Empty(t, snap.History)
	assert.False(t, snap.Asking)
}

func TestAIUsesFormatOfResult(t *testing.T) {
	b := &fakeBackend{summary: "memo", answer: "ok"}
	s := newSession(t, b, Options{Features: AllFeatures()})
	converted(t, s)
	require.NoError(t, s.SelectTarget("docx"))

	rec := &recordingBackend{fakeBackend: b}
	s.backend = rec
	_, err := s.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pdf", rec.target)
}

type blockingChat struct {
	*fakeBackend
	started chan struct{}
	release chan struct{}
}

func (b *blockingChat) Chat(ctx context.Context, link, target, question string, history []models.ChatTurn) (string, error) {
	close(b.started)
	<-b.release
	return "late answer", nil
}

type recordingBackend struct {
	*fakeBackend
	target string
}

func (r *recordingBackend) Summarize(ctx context.Context, link, target string) (string, error) {
	r.target = target
	return r.fakeBackend.Summarize(ctx, link, target)
}

func TestPreviewOpensResolvedLink(t *testing.T) {
	var opened []string
	s := newSession(t, &fakeBackend{}, Options{
		Features: AllFeatures(),
		Opener:   func(v string) error { opened = append(opened, v); return nil },
	})
	_, err := s.Preview()
	assert.ErrorIs(t, err, ErrNotConverted)

	converted(t, s)
	link, err := s.Preview()
	require.NoError(t, err)
	assert.Equal(t, "http://relay.test/converted/1-abc.pdf", link)
	assert.Equal(t, []string{link}, opened)
}

func TestPreviewDisabled(t *testing.T) {
	called := false
	s := newSession(t, &fakeBackend{}, Options{
		Features: Features{Summary: true},
		Opener:   func(string) error { called = true; return nil },
	})
	converted(t, s)
	_, err := s.Preview()
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	assert.False(t, called)
}
