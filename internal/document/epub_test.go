package document

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Sample Book</dc:title>
    <dc:creator>A. Writer</dc:creator>
    <dc:language>fr</dc:language>
    <dc:identifier id="bookid">urn:test:sample</dc:identifier>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch3" href="ch3.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="pic" href="pic.png" media-type="image/png"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="ch3"/>
  </spine>
</package>`

const testNCX = `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="urn:test:sample"/></head>
  <docTitle><text>Sample Book</text></docTitle>
  <navMap>
    <navPoint id="n1" playOrder="1"><navLabel><text>Chapter One</text></navLabel><content src="ch1.xhtml"/></navPoint>
    <navPoint id="n2" playOrder="2"><navLabel><text>Chapter Two</text></navLabel><content src="ch2.xhtml"/></navPoint>
    <navPoint id="n3" playOrder="3"><navLabel><text>Chapter Three</text></navLabel><content src="ch3.xhtml"/></navPoint>
  </navMap>
</ncx>`

func chapterXHTML(title, extraHead string) string {
	return `<html><head><title>` + title + `</title>` + extraHead +
		`</head><body><h1>` + title + `</h1><p>Prose for ` + title + `.</p></body></html>`
}

// writeTestEPUB assembles a small three-chapter EPUB on disk. Only ch1
// references the stylesheet; pic.png is declared but never referenced.
func writeTestEPUB(t *testing.T) string {
	t.Helper()
	entries := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", testContainerXML},
		{"OEBPS/content.opf", testOPF},
		{"OEBPS/toc.ncx", testNCX},
		{"OEBPS/ch1.xhtml", chapterXHTML("Chapter One", `<link rel="stylesheet" href="style.css"/>`)},
		{"OEBPS/ch2.xhtml", chapterXHTML("Chapter Two", "")},
		{"OEBPS/ch3.xhtml", chapterXHTML("Chapter Three", "")},
		{"OEBPS/style.css", "body { margin: 0; }"},
		{"OEBPS/pic.png", "\x89PNG"},
	}

	p := filepath.Join(t.TempDir(), "sample.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func zipEntryNames(t *testing.T, p string) []string {
	t.Helper()
	zr, err := zip.OpenReader(p)
	if err != nil {
		t.Fatalf("open output archive: %v", err)
	}
	defer zr.Close()
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestEPUB_OpenReadsSpineOutlineMetadata(t *testing.T) {
	doc, err := Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	if doc.Family() != FamilyContainer {
		t.Errorf("family = %q, want container", doc.Family())
	}
	units := doc.Units()
	if len(units) != 3 {
		t.Fatalf("expected 3 spine units, got %d", len(units))
	}
	if len(units[0].Headings) != 1 || units[0].Headings[0].Text != "Chapter One" {
		t.Errorf("unit 0 headings = %+v", units[0].Headings)
	}
	if units[1].Text == "" {
		t.Error("unit 1 has no extracted text")
	}

	outline := doc.Outline()
	if len(outline) != 3 {
		t.Fatalf("expected 3 outline entries, got %+v", outline)
	}
	for i, e := range outline {
		if e.Unit != i || e.Depth != 0 {
			t.Errorf("outline entry %d = %+v", i, e)
		}
	}
	if outline[1].Title != "Chapter Two" {
		t.Errorf("outline[1].Title = %q", outline[1].Title)
	}

	meta := doc.Metadata()
	if meta.Title != "Sample Book" || meta.Author != "A. Writer" || meta.Language != "fr" {
		t.Errorf("metadata = %+v", meta)
	}

	lister, ok := doc.(ManifestLister)
	if !ok {
		t.Fatal("epub document should implement ManifestLister")
	}
	titles := lister.ManifestTitles()
	if len(titles) != 3 || titles[2] != "Chapter Three" {
		t.Errorf("manifest titles = %v", titles)
	}
}

func TestEPUB_WriteSliceRoundTrip(t *testing.T) {
	doc, err := Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	dest := filepath.Join(t.TempDir(), "part1.epub")
	info, err := doc.WriteSlice(context.Background(), 0, 2, dest, WriteOptions{PreserveMetadata: true, Title: "Part One"})
	if err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}
	if len(info.Resources) != 1 || info.Resources[0] != "style.css" {
		t.Errorf("resources = %v, want [style.css]", info.Resources)
	}

	names := zipEntryNames(t, dest)
	if names[0] != "mimetype" {
		t.Errorf("first archive entry = %q, want mimetype", names[0])
	}
	has := make(map[string]bool, len(names))
	for _, n := range names {
		has[n] = true
	}
	if !has["OEBPS/style.css"] {
		t.Error("referenced stylesheet missing from output")
	}
	if has["OEBPS/pic.png"] {
		t.Error("unreferenced image should not be in the output")
	}
	if has["OEBPS/ch3.xhtml"] {
		t.Error("excluded chapter should not be in the output")
	}

	out, err := Open(dest)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	defer out.Close()

	if len(out.Units()) != 2 {
		t.Fatalf("output has %d units, want 2", len(out.Units()))
	}
	if len(out.Outline()) != 2 || out.Outline()[1].Title != "Chapter Two" {
		t.Errorf("output outline = %+v", out.Outline())
	}
	meta := out.Metadata()
	if meta.Title != "Part One" {
		t.Errorf("output title = %q, want the chapter title override", meta.Title)
	}
	if meta.Author != "A. Writer" || meta.Language != "fr" {
		t.Errorf("preserved metadata = %+v", meta)
	}
	if meta.Identifier != "urn:test:sample:0-2" {
		t.Errorf("output identifier = %q", meta.Identifier)
	}
}

func TestEPUB_ClosureFollowsOnlyIncludedUnits(t *testing.T) {
	doc, err := Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	// ch1 is the only unit referencing the stylesheet, and it is excluded.
	dest := filepath.Join(t.TempDir(), "tail.epub")
	info, err := doc.WriteSlice(context.Background(), 1, 3, dest, WriteOptions{PreserveMetadata: true})
	if err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}
	if len(info.Resources) != 0 {
		t.Errorf("resources = %v, want none", info.Resources)
	}
	for _, n := range zipEntryNames(t, dest) {
		if n == "OEBPS/style.css" {
			t.Error("stylesheet referenced only by an excluded unit was copied")
		}
	}
}

func TestEPUB_WriteSliceIdempotent(t *testing.T) {
	doc, err := Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	dir := t.TempDir()
	first := filepath.Join(dir, "a.epub")
	second := filepath.Join(dir, "b.epub")
	if _, err := doc.WriteSlice(context.Background(), 0, 2, first, WriteOptions{PreserveMetadata: true}); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}
	if _, err := doc.WriteSlice(context.Background(), 0, 2, second, WriteOptions{PreserveMetadata: true}); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("repeated writes of the same slice are not byte-identical")
	}
}

func TestEPUB_SuppressedMetadata(t *testing.T) {
	doc, err := Open(writeTestEPUB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	dest := filepath.Join(t.TempDir(), "bare.epub")
	if _, err := doc.WriteSlice(context.Background(), 0, 2, dest, WriteOptions{}); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}

	out, err := Open(dest)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	defer out.Close()

	meta := out.Metadata()
	if meta.Author != "" || meta.Created != "" {
		t.Errorf("suppressed metadata leaked: %+v", meta)
	}
	if meta.Identifier != "urn:chapsplit:0-2" {
		t.Errorf("identifier = %q, want the synthetic range identifier", meta.Identifier)
	}
}
