package ai

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

// textExtensions can be read directly by the text parser.
var textExtensions = map[string]bool{
	"txt": true, "md": true, "csv": true, "log": true,
	"html": true, "htm": true, "xml": true, "json": true,
}

// maxRenditionsCached bounds the in-memory rendition memo.
const maxRenditionsCached = 32

// documentReader turns a converted file into plain text, asking the
// extractor for a text rendition when the format is binary.
type documentReader struct {
	loader    *file.FileLoader
	extractor TextExtractor

	mu         sync.Mutex
	renditions map[string]string
	order      []string
}

func newDocumentReader(ctx context.Context, extractor TextExtractor) (*documentReader, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init document parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init document loader: %w", err)
	}
	return &documentReader{loader: loader, extractor: extractor, renditions: map[string]string{}}, nil
}

// Text returns the readable content of the local file behind doc.
func (r *documentReader) Text(ctx context.Context, doc Document) (string, error) {
	if doc.LocalPath == "" {
		return "", errors.New("document is not stored locally")
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.LocalPath)), ".")
	if !textExtensions[ext] {
		return r.rendition(ctx, doc.LocalPath, ext)
	}

	docs, err := r.loader.Load(ctx, document.Source{URI: doc.LocalPath})
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, d := range docs {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	return strings.TrimSpace(builder.String()), nil
}

// Excerpt is Text truncated to limit runes; failures yield "".
func (r *documentReader) Excerpt(ctx context.Context, doc Document, limit int) string {
	if doc.LocalPath == "" {
		return ""
	}
	text, err := r.Text(ctx, doc)
	if err != nil {
		logf("read %s failed: %v", doc.LocalPath, err)
		return ""
	}
	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit]) + "\n[truncated]"
	}
	return text
}

func (r *documentReader) rendition(ctx context.Context, path, ext string) (string, error) {
	if r.extractor == nil {
		return "", fmt.Errorf("no text rendition available for .%s", ext)
	}
	r.mu.Lock()
	text, ok := r.renditions[path]
	r.mu.Unlock()
	if ok {
		return text, nil
	}

	text, err := r.extractor.TextRendition(ctx, path)
	if err != nil {
		return "", fmt.Errorf("text rendition: %w", err)
	}
	text = strings.TrimSpace(text)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.renditions[path]; !ok {
		if len(r.order) >= maxRenditionsCached {
			delete(r.renditions, r.order[0])
			r.order = r.order[1:]
		}
		r.order = append(r.order, path)
	}
	r.renditions[path] = text
	return text, nil
}
