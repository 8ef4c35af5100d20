// Package catalog holds the static table of known file extensions, their
// human-readable labels and the output formats offered for each.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// DefaultFormat is the preferred conversion target.
const DefaultFormat = "pdf"

// genericDescription is shown for extensions missing from the catalog.
const genericDescription = "A legacy file format, often difficult to open with modern software."

//go:embed extensions.json
var embedded []byte

// Entry describes one source extension.
type Entry struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Outputs     []string `json:"outputs"`
}

// Catalog is immutable after Load; share it by pointer.
type Catalog struct {
	version string
	entries map[string]Entry
}

type document struct {
	Version    string           `json:"version"`
	Extensions map[string]Entry `json:"extensions"`
}

// Load decodes a catalog asset.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if doc.Version == "" {
		return nil, errors.New("catalog version missing")
	}
	entries := make(map[string]Entry, len(doc.Extensions))
	for ext, e := range doc.Extensions {
		key := NormalizeFormat(ext)
		if key == "" {
			continue
		}
		outs := make([]string, 0, len(e.Outputs))
		for _, o := range e.Outputs {
			if o = NormalizeFormat(o); o != "" {
				outs = append(outs, o)
			}
		}
		e.Outputs = outs
		entries[key] = e
	}
	return &Catalog{version: doc.Version, entries: entries}, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built from the embedded asset.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(strings.NewReader(string(embedded)))
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func (c *Catalog) Version() string { return c.version }

// Extensions returns every known source extension, sorted.
func (c *Catalog) Extensions() []string {
	out := make([]string, 0, len(c.entries))
	for ext := range c.entries {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Lookup returns a copy of the entry for ext.
func (c *Catalog) Lookup(ext string) (Entry, bool) {
	e, ok := c.entries[NormalizeFormat(ext)]
	if !ok {
		return Entry{}, false
	}
	e.Outputs = append([]string(nil), e.Outputs...)
	return e, true
}

// Label falls back to "EXT file", or "Unknown file" when ext is empty.
func (c *Catalog) Label(ext string) string {
	ext = NormalizeFormat(ext)
	if e, ok := c.entries[ext]; ok && e.Label != "" {
		return e.Label
	}
	if ext == "" {
		return "Unknown file"
	}
	return strings.ToUpper(ext) + " file"
}

func (c *Catalog) Description(ext string) string {
	if e, ok := c.entries[NormalizeFormat(ext)]; ok && e.Description != "" {
		return e.Description
	}
	return genericDescription
}

// Outputs lists the target formats offered for ext, never including ext itself.
// Unknown extensions get ["pdf"].
func (c *Catalog) Outputs(ext string) []string {
	ext = NormalizeFormat(ext)
	candidates := []string{DefaultFormat}
	if e, ok := c.entries[ext]; ok && len(e.Outputs) > 0 {
		candidates = e.Outputs
	}
	out := make([]string, 0, len(candidates))
	for _, o := range candidates {
		if o != ext {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{DefaultFormat}
	}
	return out
}

// DefaultTarget picks pdf when offered, otherwise the first offered format.
func (c *Catalog) DefaultTarget(ext string) string {
	return PickDefault(NormalizeFormat(ext), c.Outputs(ext))
}

// PickDefault chooses a target from candidates for a file with the given source extension.
func PickDefault(source string, candidates []string) string {
	for _, o := range candidates {
		if o == DefaultFormat && o != source {
			return o
		}
	}
	for _, o := range candidates {
		if o != source {
			return o
		}
	}
	return DefaultFormat
}

// SourceExtension is the lowercase text after the last dot of name, or "".
func SourceExtension(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}

// NormalizeFormat lowercases f and strips whitespace and a leading dot.
func NormalizeFormat(f string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
}
