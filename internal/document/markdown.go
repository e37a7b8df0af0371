package document

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// mdDocument adapts a single Markdown manuscript. Content units are the
// top-level blocks of the goldmark AST, each carrying its source byte
// range so slices reproduce the original text exactly.
type mdDocument struct {
	path   string
	src    []byte
	units  []ContentUnit
	starts []int // source byte offset per unit
	meta   Metadata
}

func openMarkdown(p string) (Document, error) {
	src, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	d := &mdDocument{path: p, src: src, meta: Metadata{Title: filenameTitle(p)}}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		off := firstSegmentStart(n)
		if off < 0 {
			// Blocks that retain no source lines (thematic breaks, empty
			// fenced code) ride along with the preceding unit's span.
			if len(d.units) > 0 {
				continue
			}
			off = 0
		}
		start := lineStart(src, off)
		if len(d.starts) == 0 {
			start = 0
		}
		unit := ContentUnit{Index: len(d.units), Name: fmt.Sprintf("block-%d", len(d.units)+1)}
		if h, ok := n.(*ast.Heading); ok {
			title := strings.TrimSpace(string(h.Text(src)))
			if title != "" {
				unit.Headings = []Heading{{Level: h.Level, Text: title}}
			}
		}
		d.units = append(d.units, unit)
		d.starts = append(d.starts, start)
	}

	// Unit text is the source span up to the next block.
	for i := range d.units {
		end := len(src)
		if i+1 < len(d.starts) {
			end = d.starts[i+1]
		}
		d.units[i].Text = strings.TrimSpace(string(src[d.starts[i]:end]))
	}

	if len(d.units) == 0 {
		d.units = []ContentUnit{{Index: 0, Name: "block-1", Text: strings.TrimSpace(string(src))}}
		d.starts = []int{0}
	}

	return d, nil
}

func (d *mdDocument) Path() string            { return d.path }
func (d *mdDocument) Family() Family          { return FamilyContainer }
func (d *mdDocument) Units() []ContentUnit    { return d.units }
func (d *mdDocument) Outline() []OutlineEntry { return nil }
func (d *mdDocument) Metadata() Metadata      { return d.meta }
func (d *mdDocument) Close() error            { return nil }

func (d *mdDocument) WriteSlice(ctx context.Context, start, end int, dest string, opts WriteOptions) (WriteInfo, error) {
	if err := ctx.Err(); err != nil {
		return WriteInfo{}, err
	}
	if start < 0 || end > len(d.units) || start >= end {
		return WriteInfo{}, fmt.Errorf("markdown: invalid unit range [%d, %d)", start, end)
	}

	from := d.starts[start]
	to := len(d.src)
	if end < len(d.starts) {
		to = d.starts[end]
	}

	if err := os.WriteFile(dest, d.src[from:to], 0o644); err != nil {
		return WriteInfo{}, fmt.Errorf("markdown: write output: %w", err)
	}
	return WriteInfo{Bytes: int64(to - from)}, nil
}

// lineStart walks an offset back to the start of its line. Block segments
// exclude syntax markers like "# ", so the raw offset lands mid-line.
func lineStart(src []byte, off int) int {
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

func firstSegmentStart(n ast.Node) int {
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines.Len() > 0 {
			return lines.At(0).Start
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if off := firstSegmentStart(c); off >= 0 {
			return off
		}
	}
	return -1
}
