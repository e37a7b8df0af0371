package document

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// pdfDocument is the paginated-family adapter. Reading goes through
// ledongthuc/pdf (text runs with font metrics, outline tree); page-range
// extraction goes through pdfcpu, which rewrites a valid standalone PDF.
type pdfDocument struct {
	path    string
	units   []ContentUnit
	outline []OutlineEntry
	meta    Metadata
}

func openPDF(path string) (Document, error) {
	f, r, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	d := &pdfDocument{path: path}

	n := r.NumPage()
	d.units = make([]ContentUnit, 0, n)
	for i := 1; i <= n; i++ {
		unit := ContentUnit{Index: i - 1, Name: fmt.Sprintf("page-%d", i)}
		page := r.Page(i)
		if !page.V.IsNull() {
			unit.Runs = pageRuns(page)
			var sb strings.Builder
			for _, run := range unit.Runs {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(run.Text)
			}
			unit.Text = sb.String()
		}
		d.units = append(d.units, unit)
	}

	d.outline = pdfOutline(r, n)
	d.meta = pdfMetadata(r)

	return d, nil
}

func (d *pdfDocument) Path() string            { return d.path }
func (d *pdfDocument) Family() Family          { return FamilyPaginated }
func (d *pdfDocument) Units() []ContentUnit    { return d.units }
func (d *pdfDocument) Outline() []OutlineEntry { return d.outline }
func (d *pdfDocument) Metadata() Metadata      { return d.meta }
func (d *pdfDocument) Close() error            { return nil }

// WriteSlice extracts pages [start, end) into a new PDF at dest.
// pdfcpu carries the source Info dictionary through the trim, which
// covers metadata preservation; there is no cheap way to strip it, so
// the suppress option is a no-op for PDF outputs.
func (d *pdfDocument) WriteSlice(ctx context.Context, start, end int, dest string, opts WriteOptions) (WriteInfo, error) {
	if err := ctx.Err(); err != nil {
		return WriteInfo{}, err
	}
	if start < 0 || end > len(d.units) || start >= end {
		return WriteInfo{}, fmt.Errorf("pdf: invalid unit range [%d, %d)", start, end)
	}

	// pdfcpu page selections are 1-based and inclusive.
	pages := []string{fmt.Sprintf("%d-%d", start+1, end)}
	if err := api.TrimFile(d.path, dest, pages, nil); err != nil {
		return WriteInfo{}, fmt.Errorf("pdf: trim pages %s: %w", pages[0], err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return WriteInfo{}, fmt.Errorf("pdf: stat output: %w", err)
	}
	return WriteInfo{Bytes: fi.Size()}, nil
}

// pageRuns extracts styled line runs from a page. Spans sharing a baseline
// and font size are merged into one run. Malformed content streams make the
// underlying library panic; those pages degrade to no runs.
func pageRuns(page pdflib.Page) (runs []TextRun) {
	defer func() {
		if recover() != nil {
			runs = nil
		}
	}()

	content := page.Content()
	var cur strings.Builder
	var curSize, curY float64
	var curFont string
	curY = math.NaN()

	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text != "" {
			runs = append(runs, TextRun{
				Text:     text,
				FontSize: curSize,
				Bold:     strings.Contains(strings.ToLower(curFont), "bold"),
			})
		}
		cur.Reset()
	}

	for _, t := range content.Text {
		if math.IsNaN(curY) || math.Abs(t.Y-curY) > 0.5 || t.FontSize != curSize {
			flush()
			curY, curSize, curFont = t.Y, t.FontSize, t.Font
		}
		cur.WriteString(t.S)
	}
	flush()

	return runs
}

// maxOutlineEntries caps outline traversal so cyclic Next/First chains in
// broken files cannot loop forever.
const maxOutlineEntries = 4096

// pdfOutline flattens the bookmark tree with depths and resolves each
// entry's destination to a 0-based page index. Any malformation yields a
// nil outline; the signal is optional.
func pdfOutline(r *pdflib.Reader, pageCount int) (entries []OutlineEntry) {
	defer func() {
		if recover() != nil {
			entries = nil
		}
	}()

	root := r.Trailer().Key("Root")
	outlines := root.Key("Outlines")
	if outlines.IsNull() {
		return nil
	}

	// The outline destinations reference page objects; object identity is
	// not exported by the library, so pages are keyed by their printed
	// dictionary, which is stable within one reader.
	pageKey := make(map[string]int, pageCount)
	for i := 1; i <= pageCount; i++ {
		v := r.Page(i).V
		if !v.IsNull() {
			pageKey[v.String()] = i - 1
		}
	}

	walkPDFOutline(outlines.Key("First"), 0, root, pageKey, pageCount, &entries)
	return entries
}

func walkPDFOutline(item pdflib.Value, depth int, root pdflib.Value, pageKey map[string]int, pageCount int, out *[]OutlineEntry) {
	for ; !item.IsNull() && len(*out) < maxOutlineEntries; item = item.Key("Next") {
		title := strings.TrimSpace(pdfString(item.Key("Title")))
		if unit, ok := pdfDestUnit(item, root, pageKey, pageCount); ok && title != "" {
			*out = append(*out, OutlineEntry{Title: title, Depth: depth, Unit: unit})
		}
		if first := item.Key("First"); !first.IsNull() {
			walkPDFOutline(first, depth+1, root, pageKey, pageCount, out)
		}
	}
}

// pdfDestUnit resolves an outline item's destination (direct, GoTo action,
// or named destination) to a 0-based page index.
func pdfDestUnit(item, root pdflib.Value, pageKey map[string]int, pageCount int) (int, bool) {
	dest := item.Key("Dest")
	if dest.IsNull() {
		a := item.Key("A")
		if a.Kind() == pdflib.Dict && a.Key("S").Name() == "GoTo" {
			dest = a.Key("D")
		}
	}
	dest = resolveNamedDest(dest, root)

	if dest.Kind() != pdflib.Array || dest.Len() == 0 {
		return 0, false
	}
	page := dest.Index(0)
	if page.Kind() == pdflib.Integer {
		// Some writers store the page number directly.
		n := int(page.Int64())
		if n >= 0 && n < pageCount {
			return n, true
		}
		return 0, false
	}
	if idx, ok := pageKey[page.String()]; ok {
		return idx, true
	}
	return 0, false
}

// resolveNamedDest looks a name or string destination up in /Dests or the
// /Names destination tree. Non-named destinations pass through unchanged.
func resolveNamedDest(dest, root pdflib.Value) pdflib.Value {
	var name string
	switch dest.Kind() {
	case pdflib.Name:
		name = dest.Name()
	case pdflib.String:
		name = dest.RawString()
	default:
		return dest
	}

	if d := root.Key("Dests").Key(name); !d.IsNull() {
		return destArray(d)
	}
	if tree := root.Key("Names").Key("Dests"); !tree.IsNull() {
		if d := lookupNameTree(tree, name, 0); !d.IsNull() {
			return destArray(d)
		}
	}
	return pdflib.Value{}
}

// destArray unwraps the /D dictionary form of a destination.
func destArray(v pdflib.Value) pdflib.Value {
	if v.Kind() == pdflib.Dict {
		return v.Key("D")
	}
	return v
}

func lookupNameTree(node pdflib.Value, name string, depth int) pdflib.Value {
	if depth > 32 {
		return pdflib.Value{}
	}
	names := node.Key("Names")
	for i := 0; i+1 < names.Len(); i += 2 {
		if names.Index(i).RawString() == name {
			return names.Index(i + 1)
		}
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		if v := lookupNameTree(kids.Index(i), name, depth+1); !v.IsNull() {
			return v
		}
	}
	return pdflib.Value{}
}

func pdfMetadata(r *pdflib.Reader) Metadata {
	info := r.Trailer().Key("Info")
	if info.Kind() != pdflib.Dict {
		return Metadata{}
	}
	return Metadata{
		Title:   pdfString(info.Key("Title")),
		Author:  pdfString(info.Key("Author")),
		Created: pdfString(info.Key("CreationDate")),
	}
}

func pdfString(v pdflib.Value) string {
	if v.Kind() != pdflib.String {
		return ""
	}
	return v.RawString()
}
