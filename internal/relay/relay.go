// Package relay accepts uploaded legacy documents, hands them to a conversion
// service and mirrors the converted result into local storage.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ctrlr/internal/catalog"
	"ctrlr/internal/models"
	"ctrlr/internal/storage"

	"golang.org/x/sync/singleflight"
)

// PublicPrefix is the route converted files are served under.
const PublicPrefix = "/converted/"

// Converter turns a stored upload into a hosted output file and returns its URL.
type Converter interface {
	Convert(ctx context.Context, filePath, sourceExt, targetFormat string) (string, error)
}

// Fetcher downloads a URL into dst.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dst io.Writer) (int64, error)
}

// ArtifactStore persists metadata about mirrored files.
type ArtifactStore interface {
	Record(ctx context.Context, a *models.Artifact) error
	FindByName(ctx context.Context, name string) (*models.Artifact, error)
	Expired(ctx context.Context, now time.Time) ([]*models.Artifact, error)
	Delete(ctx context.Context, id int64) error
}

type Options struct {
	UploadDir    string
	ConvertedDir string
	// PublicBaseURL is prepended to /converted/ links when set.
	PublicBaseURL string
	// ArtifactTTL of zero keeps converted files forever.
	ArtifactTTL time.Duration
}

// Upload is one incoming file plus the requested target format.
type Upload struct {
	FileName     string
	Body         io.Reader
	TargetFormat string
}

// Result is what the relay hands back for a successful conversion.
type Result struct {
	URL          string
	RemoteURL    string
	SourceExt    string
	TargetFormat string
	Artifact     *models.Artifact
}

// Cached reports whether URL points at the local mirror.
func (r *Result) Cached() bool { return r.Artifact != nil }

type Relay struct {
	converter Converter
	fetcher   Fetcher
	store     ArtifactStore
	opts      Options
	now       func() time.Time
	// renditions collapses concurrent text conversions of the same file.
	renditions singleflight.Group
}

// New prepares the upload and converted directories. store may be nil.
func New(converter Converter, fetcher Fetcher, store ArtifactStore, opts Options) (*Relay, error) {
	if converter == nil || fetcher == nil {
		return nil, errors.New("converter and fetcher are required")
	}
	for _, dir := range []string{opts.UploadDir, opts.ConvertedDir} {
		if dir == "" {
			return nil, errors.New("upload and converted directories are required")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Relay{
		converter: converter,
		fetcher:   fetcher,
		store:     store,
		opts:      opts,
		now:       time.Now,
	}, nil
}

func (r *Relay) ConvertedDir() string { return r.opts.ConvertedDir }

// Validate derives the source extension from fileName and checks targetFormat
// against it. An empty target means pdf.
func Validate(fileName, targetFormat string) (string, string, error) {
	src := catalog.SourceExtension(fileName)
	dst := catalog.NormalizeFormat(targetFormat)
	if dst == "" {
		dst = catalog.DefaultFormat
	}
	if dst == src {
		return src, dst, sameFormatError(src, dst)
	}
	if dst == "wpd" {
		return src, dst, wpdTargetError()
	}
	return src, dst, nil
}

// Convert runs one upload through validation, conversion and local mirroring.
// A failed mirror still succeeds with the remote URL.
func (r *Relay) Convert(ctx context.Context, up Upload) (*Result, error) {
	if up.Body == nil || strings.TrimSpace(up.FileName) == "" {
		return nil, ErrNoFile
	}
	src, dst, err := Validate(up.FileName, up.TargetFormat)
	if err != nil {
		return nil, err
	}

	tempPath := filepath.Join(r.opts.UploadDir, NewName(src, r.now()))
	if err := writeFile(tempPath, up.Body); err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			log.Printf("remove temp upload %s failed: %v", tempPath, err)
		}
	}()

	remote, err := r.converter.Convert(ctx, tempPath, src, dst)
	if err != nil {
		log.Printf("convert %s -> %s failed: %v", src, dst, err)
		return nil, &ExternalServiceError{Err: err}
	}
	if remote == "" {
		return nil, &ExternalServiceError{Err: errNoOutputURL}
	}

	res := &Result{URL: remote, RemoteURL: remote, SourceExt: src, TargetFormat: dst}
	artifact, err := r.mirror(ctx, remote, src, dst)
	if err != nil {
		log.Printf("%v; serving remote url", err)
		return res, nil
	}
	res.URL = artifact.URL
	res.Artifact = artifact
	return res, nil
}

func (r *Relay) mirror(ctx context.Context, remote, src, dst string) (*models.Artifact, error) {
	now := r.now()
	name := NewName(outputExt(remote, dst), now)
	stored := filepath.Join(r.opts.ConvertedDir, name)

	f, err := os.OpenFile(stored, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &DownloadCacheError{URL: remote, Err: err}
	}
	n, err := r.fetcher.Fetch(ctx, remote, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(stored)
		return nil, &DownloadCacheError{URL: remote, Err: err}
	}

	a := &models.Artifact{
		FileName:     name,
		StoredPath:   stored,
		URL:          r.opts.PublicBaseURL + PublicPrefix + name,
		RemoteURL:    remote,
		SourceExt:    src,
		TargetFormat: dst,
		Size:         n,
		CreatedAt:    now.UTC(),
	}
	if r.opts.ArtifactTTL > 0 {
		a.ExpiresAt = a.CreatedAt.Add(r.opts.ArtifactTTL)
	}
	if r.store != nil {
		if err := r.store.Record(ctx, a); err != nil {
			log.Printf("record artifact %s failed: %v", name, err)
		}
	}
	return a, nil
}

// LocalPath maps a link previously returned by Convert to the mirrored file.
// With a store configured the file must have an unexpired artifact record.
func (r *Relay) LocalPath(ctx context.Context, link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(u.Path, PublicPrefix) {
		return "", false
	}
	if u.Host != "" && r.opts.PublicBaseURL == "" {
		return "", false
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == ".." {
		return "", false
	}
	if r.store != nil {
		a, err := r.store.FindByName(ctx, name)
		if err != nil {
			if !errors.Is(err, storage.ErrArtifactNotFound) {
				log.Printf("lookup artifact %s failed: %v", name, err)
			}
			return "", false
		}
		if a.Expired(r.now()) {
			return "", false
		}
	}
	p := filepath.Join(r.opts.ConvertedDir, name)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// outputExt prefers the extension in the remote file name, since some
// conversions produce a different container (zip for multi-page images).
func outputExt(remote, target string) string {
	if u, err := url.Parse(remote); err == nil {
		if ext := catalog.SourceExtension(u.Path); ext != "" && len(ext) <= 8 {
			return ext
		}
	}
	return target
}

func writeFile(dst string, body io.Reader) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
