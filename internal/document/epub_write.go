package document

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"strings"
)

const epubMimetype = "application/epub+zip"

// WriteSlice materializes content units [start, end) as a standalone EPUB.
// The output's manifest and spine reference only the included content files,
// plus the transitive closure of assets those files use; everything else
// from the source archive is dropped. The OPF and NCX are regenerated.
func (d *epubDocument) WriteSlice(ctx context.Context, start, end int, dest string, opts WriteOptions) (WriteInfo, error) {
	if err := ctx.Err(); err != nil {
		return WriteInfo{}, err
	}
	if start < 0 || end > len(d.units) || start >= end {
		return WriteInfo{}, fmt.Errorf("epub: invalid unit range [%d, %d)", start, end)
	}

	included := d.unitPaths[start:end]
	resources := resourceClosure(d.files, included)

	f, err := os.Create(dest)
	if err != nil {
		return WriteInfo{}, fmt.Errorf("epub: create output: %w", err)
	}

	zw := zip.NewWriter(f)
	fail := func(err error) (WriteInfo, error) {
		zw.Close()
		f.Close()
		return WriteInfo{}, err
	}

	// The mimetype entry must come first and be stored uncompressed.
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fail(fmt.Errorf("epub: write mimetype: %w", err))
	}
	if _, err := mw.Write([]byte(epubMimetype)); err != nil {
		return fail(fmt.Errorf("epub: write mimetype: %w", err))
	}

	if err := d.writeEntry(zw, "META-INF/container.xml", containerXML(d.opfPath)); err != nil {
		return fail(err)
	}

	for _, zp := range included {
		if err := d.writeEntry(zw, zp, d.files[zp]); err != nil {
			return fail(err)
		}
	}
	for _, zp := range resources {
		if err := d.writeEntry(zw, zp, d.files[zp]); err != nil {
			return fail(err)
		}
	}

	opfData, ncxData, err := d.renderPackage(start, end, resources, opts)
	if err != nil {
		return fail(err)
	}
	if err := d.writeEntry(zw, d.opfPath, opfData); err != nil {
		return fail(err)
	}
	if err := d.writeEntry(zw, d.ncxPath(), ncxData); err != nil {
		return fail(err)
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return WriteInfo{}, fmt.Errorf("epub: finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return WriteInfo{}, fmt.Errorf("epub: close output: %w", err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return WriteInfo{}, fmt.Errorf("epub: stat output: %w", err)
	}

	hrefs := make([]string, len(resources))
	for i, zp := range resources {
		hrefs[i] = relHref(d.opfDir, zp)
	}
	return WriteInfo{Bytes: fi.Size(), Resources: hrefs}, nil
}

func (d *epubDocument) writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("epub: create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("epub: write entry %s: %w", name, err)
	}
	return nil
}

func (d *epubDocument) ncxPath() string {
	if d.opfDir == "" {
		return "toc.ncx"
	}
	return d.opfDir + "/toc.ncx"
}

// OPF and NCX serialization structures. Prefixed names are written
// literally, which is how encoding/xml handles fixed namespaces.

type opfOut struct {
	XMLName  xml.Name       `xml:"package"`
	Xmlns    string         `xml:"xmlns,attr"`
	Version  string         `xml:"version,attr"`
	UniqueID string         `xml:"unique-identifier,attr"`
	Metadata opfOutMetadata `xml:"metadata"`
	Manifest opfOutManifest `xml:"manifest"`
	Spine    opfOutSpine    `xml:"spine"`
}

type opfOutMetadata struct {
	XmlnsDC    string `xml:"xmlns:dc,attr"`
	Title      string `xml:"dc:title"`
	Language   string `xml:"dc:language"`
	Identifier opfOutIdentifier
	Creator    string `xml:"dc:creator,omitempty"`
	Date       string `xml:"dc:date,omitempty"`
}

type opfOutIdentifier struct {
	XMLName xml.Name `xml:"dc:identifier"`
	ID      string   `xml:"id,attr"`
	Value   string   `xml:",chardata"`
}

type opfOutManifest struct {
	Items []opfOutItem `xml:"item"`
}

type opfOutItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfOutSpine struct {
	Toc      string          `xml:"toc,attr"`
	ItemRefs []opfOutItemRef `xml:"itemref"`
}

type opfOutItemRef struct {
	IDRef string `xml:"idref,attr"`
}

type ncxOut struct {
	XMLName  xml.Name     `xml:"ncx"`
	Xmlns    string       `xml:"xmlns,attr"`
	Version  string       `xml:"version,attr"`
	Head     ncxOutHead   `xml:"head"`
	DocTitle ncxOutText   `xml:"docTitle"`
	NavMap   ncxOutNavMap `xml:"navMap"`
}

type ncxOutHead struct {
	Metas []ncxOutMeta `xml:"meta"`
}

type ncxOutMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxOutText struct {
	Text string `xml:"text"`
}

type ncxOutNavMap struct {
	NavPoints []ncxOutNavPoint `xml:"navPoint"`
}

type ncxOutNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder int           `xml:"playOrder,attr"`
	Label     ncxOutText    `xml:"navLabel"`
	Content   ncxOutContent `xml:"content"`
}

type ncxOutContent struct {
	Src string `xml:"src,attr"`
}

// renderPackage builds the regenerated OPF and NCX for a slice. Output is
// deterministic for a fixed slice so re-running a split is byte-identical.
func (d *epubDocument) renderPackage(start, end int, resources []string, opts WriteOptions) (opf, ncx []byte, err error) {
	title := opts.Title
	if title == "" {
		title = d.meta.Title
	}
	if title == "" {
		title = filenameTitle(d.path)
	}

	lang := "en"
	identifier := fmt.Sprintf("urn:chapsplit:%d-%d", start, end)
	creator, date := "", ""
	if opts.PreserveMetadata {
		if d.meta.Language != "" {
			lang = d.meta.Language
		}
		if d.meta.Identifier != "" {
			identifier = fmt.Sprintf("%s:%d-%d", d.meta.Identifier, start, end)
		}
		creator = d.meta.Author
		date = d.meta.Created
	}

	pkg := opfOut{
		Xmlns:    "http://www.idpf.org/2007/opf",
		Version:  "2.0",
		UniqueID: "bookid",
		Metadata: opfOutMetadata{
			XmlnsDC:    "http://purl.org/dc/elements/1.1/",
			Title:      title,
			Language:   lang,
			Identifier: opfOutIdentifier{ID: "bookid", Value: identifier},
			Creator:    creator,
			Date:       date,
		},
		Spine: opfOutSpine{Toc: "ncx"},
	}

	pkg.Manifest.Items = append(pkg.Manifest.Items, opfOutItem{
		ID:        "ncx",
		Href:      "toc.ncx",
		MediaType: "application/x-dtbncx+xml",
	})

	ncxDoc := ncxOut{
		Xmlns:   "http://www.daisy.org/z3986/2005/ncx/",
		Version: "2005-1",
		Head: ncxOutHead{Metas: []ncxOutMeta{
			{Name: "dtb:uid", Content: identifier},
			{Name: "dtb:depth", Content: "1"},
		}},
		DocTitle: ncxOutText{Text: title},
	}

	for i, zp := range d.unitPaths[start:end] {
		href := relHref(d.opfDir, zp)
		id := fmt.Sprintf("content-%d", i+1)
		pkg.Manifest.Items = append(pkg.Manifest.Items, opfOutItem{
			ID:        id,
			Href:      href,
			MediaType: d.entryMediaType(zp),
		})
		pkg.Spine.ItemRefs = append(pkg.Spine.ItemRefs, opfOutItemRef{IDRef: id})
		ncxDoc.NavMap.NavPoints = append(ncxDoc.NavMap.NavPoints, ncxOutNavPoint{
			ID:        fmt.Sprintf("nav-%d", i+1),
			PlayOrder: i + 1,
			Label:     ncxOutText{Text: d.titles[start+i]},
			Content:   ncxOutContent{Src: href},
		})
	}

	for i, zp := range resources {
		pkg.Manifest.Items = append(pkg.Manifest.Items, opfOutItem{
			ID:        fmt.Sprintf("res-%d", i+1),
			Href:      relHref(d.opfDir, zp),
			MediaType: d.entryMediaType(zp),
		})
	}

	opfBody, err := xml.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("epub: marshal opf: %w", err)
	}
	ncxBody, err := xml.MarshalIndent(ncxDoc, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("epub: marshal ncx: %w", err)
	}

	return append([]byte(xml.Header), opfBody...), append([]byte(xml.Header), ncxBody...), nil
}

// entryMediaType prefers the source manifest's declared type, falling back
// to an extension guess for entries the source never declared.
func (d *epubDocument) entryMediaType(zp string) string {
	if mt, ok := d.mediaType[zp]; ok && mt != "" {
		return mt
	}
	switch strings.ToLower(path.Ext(zp)) {
	case ".xhtml", ".html", ".htm":
		return "application/xhtml+xml"
	case ".css":
		return "text/css"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}

func containerXML(opfPath string) []byte {
	return []byte(xml.Header + `<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="` + opfPath + `" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`)
}

// relHref renders an archive path relative to the OPF directory, walking up
// with ../ when the entry lives outside it.
func relHref(opfDir, zp string) string {
	if opfDir == "" {
		return zp
	}
	prefix := opfDir
	up := ""
	for prefix != "" && !strings.HasPrefix(zp, prefix+"/") {
		up += "../"
		if i := strings.LastIndex(prefix, "/"); i >= 0 {
			prefix = prefix[:i]
		} else {
			prefix = ""
		}
	}
	if prefix == "" {
		return up + zp
	}
	return up + zp[len(prefix)+1:]
}
