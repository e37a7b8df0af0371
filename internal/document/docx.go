package document

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// docxDocument adapts a Word document. Content units are body paragraphs;
// heading-styled paragraphs carry a Heading entry at their style level.
// Slices are rebuilt as fresh documents from paragraph text, so run-level
// formatting beyond heading emphasis is not carried over.
type docxDocument struct {
	path  string
	units []ContentUnit
	meta  Metadata
}

func openDOCX(p string) (Document, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	doc, err := docx.Parse(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: parse docx: %v", ErrUnreadableSource, err)
	}

	d := &docxDocument{path: p, meta: Metadata{Title: filenameTitle(p)}}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := paragraphText(para)
		if text == "" {
			continue
		}
		unit := ContentUnit{Index: len(d.units), Name: fmt.Sprintf("para-%d", len(d.units)+1), Text: text}
		if level := paragraphHeadingLevel(para); level > 0 {
			unit.Headings = []Heading{{Level: level, Text: text}}
		}
		d.units = append(d.units, unit)
	}

	if len(d.units) == 0 {
		return nil, fmt.Errorf("%w: docx has no paragraph content", ErrUnreadableSource)
	}

	return d, nil
}

func (d *docxDocument) Path() string            { return d.path }
func (d *docxDocument) Family() Family          { return FamilyContainer }
func (d *docxDocument) Units() []ContentUnit    { return d.units }
func (d *docxDocument) Outline() []OutlineEntry { return nil }
func (d *docxDocument) Metadata() Metadata      { return d.meta }
func (d *docxDocument) Close() error            { return nil }

// Heading sizes in half-points for rebuilt output paragraphs.
var docxHeadingSizes = map[int]string{1: "36", 2: "32", 3: "28", 4: "26", 5: "24", 6: "24"}

func (d *docxDocument) WriteSlice(ctx context.Context, start, end int, dest string, opts WriteOptions) (WriteInfo, error) {
	if err := ctx.Err(); err != nil {
		return WriteInfo{}, err
	}
	if start < 0 || end > len(d.units) || start >= end {
		return WriteInfo{}, fmt.Errorf("docx: invalid unit range [%d, %d)", start, end)
	}

	out := docx.New().WithDefaultTheme()
	for _, unit := range d.units[start:end] {
		p := out.AddParagraph()
		if len(unit.Headings) > 0 {
			size := docxHeadingSizes[unit.Headings[0].Level]
			if size == "" {
				size = "24"
			}
			p.AddText(unit.Text).Size(size).Bold()
		} else {
			p.AddText(unit.Text)
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return WriteInfo{}, fmt.Errorf("docx: create output: %w", err)
	}
	if _, err := out.WriteTo(f); err != nil {
		f.Close()
		return WriteInfo{}, fmt.Errorf("docx: write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return WriteInfo{}, fmt.Errorf("docx: close output: %w", err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return WriteInfo{}, fmt.Errorf("docx: stat output: %w", err)
	}
	return WriteInfo{Bytes: fi.Size()}, nil
}

func paragraphHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	switch style[len("heading"):] {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
