package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Family identifies which of the two document shapes an adapter exposes:
// paginated documents address ordered pages, container documents address
// ordered content files.
type Family string

const (
	FamilyPaginated Family = "paginated"
	FamilyContainer Family = "container"
)

// ErrUnreadableSource indicates the source file could not be parsed at all.
var ErrUnreadableSource = errors.New("document: unreadable source")

// ContentUnit is one addressable piece of the source: a page for paginated
// documents, a spine content file for containers. Units are built once at
// open time and are read-only afterward.
type ContentUnit struct {
	Index    int       // 0-based, stable
	Name     string    // page label or content-file href
	Text     string    // extracted plain text, possibly empty
	Runs     []TextRun // styled runs with font metrics (paginated family)
	Headings []Heading // heading elements in document order (container family)
}

// TextRun is a styled run of text with its font metrics.
type TextRun struct {
	Text     string
	FontSize float64
	Bold     bool
}

// Heading is a structural heading element found inside a content unit.
type Heading struct {
	Level int // 1 = h1
	Text  string
	ID    string
}

// OutlineEntry is one entry of an embedded navigation resource, flattened
// with its nesting depth and resolved to the content unit it points at.
type OutlineEntry struct {
	Title string
	Depth int // 0 = top level
	Unit  int // content-unit index the entry begins at
}

// Metadata carries the global document metadata copied into split outputs.
type Metadata struct {
	Title      string
	Author     string
	Language   string
	Identifier string
	Created    string
}

// WriteOptions controls slice materialization.
type WriteOptions struct {
	PreserveMetadata bool
	Title            string // per-output title override (chapter title)
}

// WriteInfo reports what a WriteSlice call produced.
type WriteInfo struct {
	Bytes     int64
	Resources []string // copied asset hrefs (container family only)
}

// Document is the uniform read-only view the detector and splitter consume.
// Implementations are not safe for concurrent mutation, but all methods
// except WriteSlice are read-only and may be called from multiple goroutines
// once Open has returned.
type Document interface {
	Path() string
	Family() Family
	Units() []ContentUnit
	// Outline returns the embedded navigation outline, or nil when the
	// document has none or it is malformed. Malformation is never an error.
	Outline() []OutlineEntry
	Metadata() Metadata
	// WriteSlice materializes units [start, end) as a standalone document
	// at dest. It overwrites an existing file at dest.
	WriteSlice(ctx context.Context, start, end int, dest string, opts WriteOptions) (WriteInfo, error)
	Close() error
}

// ManifestLister is implemented by container documents whose content files
// are declared in an explicit reading-order manifest. It backs the
// manifest detection signal.
type ManifestLister interface {
	// ManifestTitles returns one display title per content unit, derived
	// from the unit's first heading or its filename.
	ManifestTitles() []string
}

// SupportedExtensions lists file extensions this module can split.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".epub":     true,
	".docx":     true,
	".md":       true,
	".markdown": true,
}

// Open loads a document with the adapter matching its file extension.
func Open(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return openPDF(path)
	case ".epub":
		return openEPUB(path)
	case ".docx":
		return openDOCX(path)
	case ".md", ".markdown":
		return openMarkdown(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrUnreadableSource, ext)
	}
}

// OutputExt returns the extension outputs of this document should carry.
func OutputExt(d Document) string {
	ext := strings.ToLower(filepath.Ext(d.Path()))
	if ext == ".markdown" {
		return ".md"
	}
	return ext
}
