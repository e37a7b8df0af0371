package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
)

// epubDocument is the container-family adapter. The spine and manifest come
// from goreader; the archive itself is read once into memory so slicing and
// resource closure can work on raw entries.
type epubDocument struct {
	path    string
	units   []ContentUnit
	outline []OutlineEntry
	meta    Metadata
	titles  []string // manifest-signal title per unit

	files     map[string][]byte // every archive entry, keyed by zip path
	opfPath   string
	opfDir    string
	unitPaths []string          // zip path per content unit
	mediaType map[string]string // zip path -> manifest media type
}

func openEPUB(p string) (Document, error) {
	rc, err := epub.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("%w: no rootfiles in epub", ErrUnreadableSource)
	}
	book := rc.Rootfiles[0]

	d := &epubDocument{path: p, mediaType: make(map[string]string)}
	if err := d.loadArchive(p); err != nil {
		return nil, err
	}

	opfPath, err := containerOPFPath(d.files)
	if err != nil {
		return nil, err
	}
	d.opfPath = opfPath
	d.opfDir = path.Dir(opfPath)
	if d.opfDir == "." {
		d.opfDir = ""
	}

	for _, item := range book.Manifest.Items {
		d.mediaType[d.zipPath(item.HREF)] = item.MediaType
	}

	// Content units follow the spine's declared reading order.
	for _, ref := range book.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		zp := d.zipPath(ref.Item.HREF)
		data, ok := d.files[zp]
		if !ok {
			continue
		}
		unit := ContentUnit{Index: len(d.units), Name: ref.Item.HREF}
		title := ""
		if node, err := html.Parse(bytes.NewReader(data)); err == nil {
			unit.Text = htmlText(node)
			unit.Headings = htmlHeadings(node)
			title = htmlDocTitle(node, unit.Headings)
		}
		if title == "" {
			title = filenameTitle(ref.Item.HREF)
		}
		d.units = append(d.units, unit)
		d.titles = append(d.titles, title)
		d.unitPaths = append(d.unitPaths, zp)
	}

	d.meta = opfDocMetadata(d.files[opfPath])
	d.outline = d.ncxOutline(book)

	return d, nil
}

func (d *epubDocument) Path() string             { return d.path }
func (d *epubDocument) Family() Family           { return FamilyContainer }
func (d *epubDocument) Units() []ContentUnit     { return d.units }
func (d *epubDocument) Outline() []OutlineEntry  { return d.outline }
func (d *epubDocument) Metadata() Metadata       { return d.meta }
func (d *epubDocument) ManifestTitles() []string { return d.titles }
func (d *epubDocument) Close() error             { return nil }

func (d *epubDocument) loadArchive(p string) error {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer zr.Close()

	d.files = make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}
		d.files[f.Name] = data
	}
	return nil
}

// zipPath resolves an OPF-relative href to an archive path.
func (d *epubDocument) zipPath(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.Index(href, "#"); i >= 0 {
		href = href[:i]
	}
	if d.opfDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(d.opfDir, href))
}

// ncxOutline parses the NCX navigation resource into a flattened,
// depth-annotated outline. A missing or malformed NCX yields nil; the
// navigation signal is optional.
func (d *epubDocument) ncxOutline(book *epub.Rootfile) []OutlineEntry {
	ncxPath := ""
	for _, item := range book.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = d.zipPath(item.HREF)
			break
		}
	}
	if ncxPath == "" {
		for zp := range d.files {
			if strings.HasSuffix(strings.ToLower(zp), ".ncx") {
				ncxPath = zp
				break
			}
		}
	}
	if ncxPath == "" {
		return nil
	}
	data, ok := d.files[ncxPath]
	if !ok {
		return nil
	}

	var toc ncxRoot
	if err := xml.Unmarshal(data, &toc); err != nil {
		return nil
	}

	// NCX srcs resolve relative to the NCX file's own directory.
	ncxDir := path.Dir(ncxPath)
	unitByPath := make(map[string]int, len(d.unitPaths))
	unitByBase := make(map[string]int, len(d.unitPaths))
	for i, zp := range d.unitPaths {
		unitByPath[zp] = i
		if _, dup := unitByBase[path.Base(zp)]; !dup {
			unitByBase[path.Base(zp)] = i
		}
	}

	var entries []OutlineEntry
	var walk func(points []ncxNavPoint, depth int)
	walk = func(points []ncxNavPoint, depth int) {
		for _, np := range points {
			src := np.Content.Src
			if i := strings.Index(src, "#"); i >= 0 {
				src = src[:i]
			}
			title := strings.TrimSpace(np.Label.Text)
			target := path.Clean(path.Join(ncxDir, src))
			unit, ok := unitByPath[target]
			if !ok {
				unit, ok = unitByBase[path.Base(src)]
			}
			if ok && title != "" {
				entries = append(entries, OutlineEntry{Title: title, Depth: depth, Unit: unit})
			}
			walk(np.Children, depth+1)
		}
	}
	walk(toc.NavMap.NavPoints, 0)

	return entries
}

// NCX structures for parsing toc.ncx.
type ncxRoot struct {
	NavMap ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label    ncxLabel      `xml:"navLabel"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxLabel struct {
	Text string `xml:"text"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// containerOPFPath reads META-INF/container.xml to find the rootfile.
func containerOPFPath(files map[string][]byte) (string, error) {
	data, ok := files["META-INF/container.xml"]
	if !ok {
		return "", fmt.Errorf("%w: missing META-INF/container.xml", ErrUnreadableSource)
	}
	var c struct {
		Rootfiles []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfiles>rootfile"`
	}
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("%w: parse container.xml: %v", ErrUnreadableSource, err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return "", fmt.Errorf("%w: container.xml has no rootfile", ErrUnreadableSource)
	}
	return c.Rootfiles[0].FullPath, nil
}

// opfDCMetadata mirrors the Dublin Core subset we copy into outputs.
type opfDCMetadata struct {
	Titles      []string `xml:"metadata>title"`
	Creators    []string `xml:"metadata>creator"`
	Languages   []string `xml:"metadata>language"`
	Identifiers []string `xml:"metadata>identifier"`
	Dates       []string `xml:"metadata>date"`
}

func opfDocMetadata(data []byte) Metadata {
	if data == nil {
		return Metadata{}
	}
	var pkg opfDCMetadata
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return Metadata{}
	}
	m := Metadata{}
	if len(pkg.Titles) > 0 {
		m.Title = strings.TrimSpace(pkg.Titles[0])
	}
	if len(pkg.Creators) > 0 {
		m.Author = strings.TrimSpace(pkg.Creators[0])
	}
	if len(pkg.Languages) > 0 {
		m.Language = strings.TrimSpace(pkg.Languages[0])
	}
	if len(pkg.Identifiers) > 0 {
		m.Identifier = strings.TrimSpace(pkg.Identifiers[0])
	}
	if len(pkg.Dates) > 0 {
		m.Created = strings.TrimSpace(pkg.Dates[0])
	}
	return m
}

// htmlText extracts all visible text from a parsed document.
func htmlText(n *html.Node) string {
	var out strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if out.Len() > 0 {
					out.WriteByte(' ')
				}
				out.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out.String()
}

// htmlHeadings collects h1-h6 elements in document order.
func htmlHeadings(n *html.Node) []Heading {
	var headings []Heading
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				text := strings.TrimSpace(nodeText(n))
				if text != "" {
					headings = append(headings, Heading{
						Level: level,
						Text:  text,
						ID:    attrValue(n, "id"),
					})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return headings
}

// htmlDocTitle picks a unit display title: <title> tag, then first heading.
func htmlDocTitle(n *html.Node, headings []Heading) string {
	if t := findElementText(n, "title"); t != "" {
		return t
	}
	if len(headings) > 0 {
		return headings[0].Text
	}
	return ""
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findElementText(n *html.Node, tag string) string {
	if n.Type == html.ElementNode && n.Data == tag {
		return nodeText(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findElementText(c, tag); t != "" {
			return t
		}
	}
	return ""
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// filenameTitle derives a display title from a content-file href.
func filenameTitle(href string) string {
	base := path.Base(href)
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
}
