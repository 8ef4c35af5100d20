// Package client holds the upload/convert lifecycle of a single picked file.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"ctrlr/internal/catalog"
	"ctrlr/internal/models"

	"github.com/atotto/clipboard"
)

type Stage int

const (
	StageUpload Stage = iota
	StageSelectingFormat
	StageConverting
	StageConverted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageSelectingFormat:
		return "selecting-format"
	case StageConverting:
		return "converting"
	case StageConverted:
		return "converted"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Features toggles the optional panels shown after a conversion.
type Features struct {
	Preview bool
	Summary bool
	Chat    bool
}

func AllFeatures() Features { return Features{Preview: true, Summary: true, Chat: true} }

// CopiedFor is how long the copied flag stays raised after CopyLink.
const CopiedFor = 1500 * time.Millisecond

var (
	ErrNoFile          = errors.New("no file selected")
	ErrBusy            = errors.New("a conversion is already running")
	ErrUnknownTarget   = errors.New("target format not offered for this file")
	ErrNotConverted    = errors.New("no converted file yet")
	ErrNoSummary       = errors.New("summarize the file before asking questions")
	ErrFeatureDisabled = errors.New("feature disabled")
	ErrEmptyQuestion   = errors.New("question is empty")
	// ErrStale reports a response that arrived after the state it belonged to was discarded.
	ErrStale = errors.New("response belongs to a replaced file")
)

type File struct {
	Path         string
	Name         string
	Size         int64
	LastModified time.Time
}

func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Path:         path,
		Name:         filepath.Base(path),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

type Options struct {
	Features Features
	// Clipboard defaults to the system clipboard.
	Clipboard func(string) error
	// Opener defaults to the desktop's URL handler.
	Opener func(string) error
	// OnChange is called after every state change, outside the session lock.
	OnChange func()
}

// Session is safe for concurrent use; backend calls run without holding the lock.
type Session struct {
	mu       sync.Mutex
	backend  Backend
	catalog  *catalog.Catalog
	features Features
	copyFn   func(string) error
	openFn   func(string) error
	onChange func()

	gen        uint64
	file       *File
	sourceExt  string
	candidates []string
	target     string
	stage      Stage
	resultURL  string
	// resultFormat is the target resultURL was produced in.
	resultFormat string
	errMsg       string

	// aiGen changes whenever summary and chat are discarded.
	aiGen       uint64
	summary     string
	summarizing bool
	asking      bool
	aiErr       string
	history     []models.ChatTurn

	copied    bool
	copyTimer *time.Timer
}

func NewSession(backend Backend, cat *catalog.Catalog, opts Options) *Session {
	if cat == nil {
		cat = catalog.Default()
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.Opener == nil {
		opts.Opener = openInBrowser
	}
	return &Session{
		backend:  backend,
		catalog:  cat,
		features: opts.Features,
		copyFn:   opts.Clipboard,
		openFn:   opts.Opener,
		onChange: opts.OnChange,
		stage:    StageUpload,
	}
}

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	Stage        Stage
	Features     Features
	File         *File
	SourceExt    string
	Label        string
	Description  string
	Candidates   []string
	TargetFormat string
	ResultURL    string
	Error        string
	Summary      string
	Summarizing  bool
	Asking       bool
	AIError      string
	History      []models.ChatTurn
	Copied       bool
}

// CanSelectFormat is false while a conversion is in flight.
func (s Snapshot) CanSelectFormat() bool {
	return s.File != nil && s.Stage != StageConverting && s.Stage != StageUpload
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Stage:        s.stage,
		Features:     s.features,
		SourceExt:    s.sourceExt,
		Candidates:   slices.Clone(s.candidates),
		TargetFormat: s.target,
		ResultURL:    s.resultURL,
		Error:        s.errMsg,
		Summary:      s.summary,
		Summarizing:  s.summarizing,
		Asking:       s.asking,
		AIError:      s.aiErr,
		History:      slices.Clone(s.history),
		Copied:       s.copied,
	}
	if s.file != nil {
		f := *s.file
		snap.File = &f
		snap.Label = s.catalog.Label(s.sourceExt)
		snap.Description = s.catalog.Description(s.sourceExt)
	}
	return snap
}

// Pick replaces the current file and discards everything derived from the old one.
func (s *Session) Pick(f File) {
	if f.Name == "" {
		f.Name = filepath.Base(f.Path)
	}
	s.mu.Lock()
	s.gen++
	s.file = &f
	s.sourceExt = catalog.SourceExtension(f.Name)
	s.candidates = s.catalog.Outputs(s.sourceExt)
	s.target = catalog.PickDefault(s.sourceExt, s.candidates)
	s.enterUpload()
	s.mu.Unlock()
	s.changed()
}

// Reset forgets the picked file entirely.
func (s *Session) Reset() {
	s.mu.Lock()
	s.gen++
	s.file = nil
	s.sourceExt = ""
	s.candidates = nil
	s.target = ""
	s.enterUpload()
	s.mu.Unlock()
	s.changed()
}

// enterUpload must be called with s.mu held.
func (s *Session) enterUpload() {
	s.stage = StageUpload
	s.resultURL = ""
	s.errMsg = ""
	s.clearAI()
	s.copied = false
	if s.copyTimer != nil {
		s.copyTimer.Stop()
		s.copyTimer = nil
	}
}

func (s *Session) clearAI() {
	s.aiGen++
	s.summary = ""
	s.summarizing = false
	s.asking = false
	s.aiErr = ""
	s.history = nil
}

func (s *Session) ProceedToOptions() error {
	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return ErrNoFile
	}
	switch s.stage {
	case StageUpload:
	case StageConverted:
		// back to the format list to convert again
		s.resultURL = ""
		s.clearAI()
	default:
		s.mu.Unlock()
		return nil
	}
	s.stage = StageSelectingFormat
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Session) SelectTarget(format string) error {
	format = catalog.NormalizeFormat(format)
	s.mu.Lock()
	switch {
	case s.file == nil:
		s.mu.Unlock()
		return ErrNoFile
	case s.stage == StageConverting:
		s.mu.Unlock()
		return ErrBusy
	case !slices.Contains(s.candidates, format):
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTarget, format)
	}
	s.target = format
	s.mu.Unlock()
	s.changed()
	return nil
}

// StartConversion sends the file to the relay and blocks until it answers.
func (s *Session) StartConversion(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.file == nil:
		s.mu.Unlock()
		return ErrNoFile
	case s.stage == StageConverting:
		s.mu.Unlock()
		return ErrBusy
	}
	gen := s.gen
	file := *s.file
	target := s.target
	s.stage = StageConverting
	s.resultURL = ""
	s.errMsg = ""
	s.clearAI()
	s.mu.Unlock()
	s.changed()

	link, err := s.backend.Convert(ctx, file, target)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.stage = StageFailed
		s.errMsg = err.Error()
	} else {
		s.stage = StageConverted
		s.resultURL = link
		s.resultFormat = target
	}
	s.mu.Unlock()
	s.changed()
	return err
}

// OpenResult returns the absolute URL of the converted file.
func (s *Session) OpenResult() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageConverted {
		return "", ErrNotConverted
	}
	return s.backend.ResolveURL(s.resultURL), nil
}

// Preview opens the converted file with the system's URL handler and returns
// the link that was opened.
func (s *Session) Preview() (string, error) {
	s.mu.Lock()
	enabled := s.features.Preview
	s.mu.Unlock()
	if !enabled {
		return "", ErrFeatureDisabled
	}
	link, err := s.OpenResult()
	if err != nil {
		return "", err
	}
	if err := s.openFn(link); err != nil {
		return link, fmt.Errorf("open %s: %w", link, err)
	}
	return link, nil
}

// CopyLink puts the result URL on the clipboard and raises Copied for CopiedFor.
func (s *Session) CopyLink() error {
	link, err := s.OpenResult()
	if err != nil {
		return err
	}
	if err := s.copyFn(link); err != nil {
		return fmt.Errorf("copy link: %w", err)
	}

	s.mu.Lock()
	gen := s.gen
	s.copied = true
	if s.copyTimer != nil {
		s.copyTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(CopiedFor, func() {
		s.mu.Lock()
		if s.gen != gen || s.copyTimer != timer {
			s.mu.Unlock()
			return
		}
		s.copied = false
		s.copyTimer = nil
		s.mu.Unlock()
		s.changed()
	})
	s.copyTimer = timer
	s.mu.Unlock()
	s.changed()
	return nil
}

// Summarize asks the relay for a summary of the converted file.
// A fresh summary starts a new chat.
func (s *Session) Summarize(ctx context.Context) (string, error) {
	s.mu.Lock()
	if err := s.readyForAI(s.features.Summary); err != nil {
		s.mu.Unlock()
		return "", err
	}
	aiGen := s.aiGen
	link, target := s.resultURL, s.resultFormat
	s.summarizing = true
	s.aiErr = ""
	s.mu.Unlock()
	s.changed()

	summary, err := s.backend.Summarize(ctx, link, target)

	s.mu.Lock()
	if aiGen != s.aiGen {
		s.mu.Unlock()
		return "", ErrStale
	}
	s.summarizing = false
	if err != nil {
		s.aiErr = err.Error()
	} else {
		s.summary = summary
		s.history = nil
	}
	s.mu.Unlock()
	s.changed()
	return summary, err
}

// Ask sends a question with the running history. Both turns are recorded only
// once an answer arrives.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	s.mu.Lock()
	if err := s.readyForAI(s.features.Chat); err != nil {
		s.mu.Unlock()
		return "", err
	}
	switch {
	case s.summary == "":
		s.mu.Unlock()
		return "", ErrNoSummary
	case question == "":
		s.mu.Unlock()
		return "", ErrEmptyQuestion
	}
	aiGen := s.aiGen
	link, target := s.resultURL, s.resultFormat
	history := slices.Clone(s.history)
	s.asking = true
	s.aiErr = ""
	s.mu.Unlock()
	s.changed()

	answer, err := s.backend.Chat(ctx, link, target, question, history)

	s.mu.Lock()
	if aiGen != s.aiGen {
		s.mu.Unlock()
		return "", ErrStale
	}
	s.asking = false
	if err != nil {
		s.aiErr = err.Error()
	} else {
		s.history = append(s.history,
			models.ChatTurn{Speaker: models.RoleUser, Text: question},
			models.ChatTurn{Speaker: models.RoleAssistant, Text: answer},
		)
	}
	s.mu.Unlock()
	s.changed()
	return answer, err
}

// readyForAI must be called with s.mu held.
func (s *Session) readyForAI(enabled bool) error {
	switch {
	case !enabled:
		return ErrFeatureDisabled
	case s.stage != StageConverted:
		return ErrNotConverted
	case s.summarizing || s.asking:
		return ErrBusy
	}
	return nil
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
