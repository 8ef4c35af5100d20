package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"ctrlr/internal/catalog"
)

const (
	maxRenditionBytes = 1 << 20
	// renditionSuffix names the text copy kept next to a converted file.
	renditionSuffix = ".txt"
)

// TextRendition asks the converter for a plain-text copy of a stored file so
// it can be summarized. Text files are read directly. The copy is kept next to
// the file, so each file is converted to text at most once.
func (r *Relay) TextRendition(ctx context.Context, filePath string) (string, error) {
	ext := catalog.SourceExtension(filePath)
	if ext == "txt" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	sidecar := renditionPath(filePath)
	if data, err := os.ReadFile(sidecar); err == nil {
		return string(data), nil
	}
	v, err, _ := r.renditions.Do(sidecar, func() (any, error) {
		if data, err := os.ReadFile(sidecar); err == nil {
			return string(data), nil
		}
		text, err := r.fetchRendition(ctx, filePath, ext)
		if err != nil {
			return "", err
		}
		if err := writeSidecar(sidecar, text); err != nil {
			log.Printf("store text rendition %s failed: %v", sidecar, err)
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func renditionPath(filePath string) string {
	return filePath + renditionSuffix
}

func writeSidecar(dst, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".rendition-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (r *Relay) fetchRendition(ctx context.Context, filePath, ext string) (string, error) {
	remote, err := r.converter.Convert(ctx, filePath, ext, "txt")
	if err != nil {
		return "", &ExternalServiceError{Err: err}
	}
	if remote == "" {
		return "", &ExternalServiceError{Err: errNoOutputURL}
	}
	var buf capWriter
	buf.limit = maxRenditionBytes
	if _, err := r.fetcher.Fetch(ctx, remote, &buf); err != nil && !errors.Is(err, errCapReached) {
		return "", fmt.Errorf("fetch text rendition: %w", err)
	}
	return buf.String(), nil
}

var errCapReached = errors.New("rendition size cap reached")

// capWriter buffers up to limit bytes, then fails the copy.
type capWriter struct {
	strings.Builder
	limit int
}

func (w *capWriter) Write(p []byte) (int, error) {
	room := w.limit - w.Len()
	if room <= 0 {
		return 0, errCapReached
	}
	if len(p) > room {
		w.Builder.Write(p[:room])
		return room, errCapReached
	}
	return w.Builder.Write(p)
}
