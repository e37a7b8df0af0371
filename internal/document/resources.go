package document

import (
	"bytes"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Resource closure is a reachability problem over the reference graph:
// content file -> asset and asset -> asset (a stylesheet importing another
// stylesheet). The traversal keeps a visited set so cyclic references
// terminate.

var (
	cssURLPattern    = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)
)

// resourceClosure returns the sorted set of asset archive paths referenced,
// directly or transitively, by the given content files. Content documents
// themselves are never part of the closure.
func resourceClosure(files map[string][]byte, contentPaths []string) []string {
	visited := make(map[string]bool)
	var queue []string

	enqueue := func(basePath, ref string) {
		zp := resolveRef(basePath, ref)
		if zp == "" || visited[zp] || isContentPath(zp) {
			return
		}
		if _, ok := files[zp]; !ok {
			return
		}
		visited[zp] = true
		queue = append(queue, zp)
	}

	for _, cp := range contentPaths {
		data, ok := files[cp]
		if !ok {
			continue
		}
		for _, ref := range htmlRefs(data) {
			enqueue(cp, ref)
		}
	}

	for len(queue) > 0 {
		zp := queue[0]
		queue = queue[1:]
		if strings.EqualFold(path.Ext(zp), ".css") {
			for _, ref := range cssRefs(files[zp]) {
				enqueue(zp, ref)
			}
		}
	}

	closure := make([]string, 0, len(visited))
	for zp := range visited {
		closure = append(closure, zp)
	}
	sort.Strings(closure)
	return closure
}

// htmlRefs extracts asset references from a content file: img/src,
// svg image hrefs, stylesheet links, media sources, and url() inside
// inline <style> blocks.
func htmlRefs(data []byte) []string {
	node, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	var refs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img", "source", "audio", "video":
				if v := attrValue(n, "src"); v != "" {
					refs = append(refs, v)
				}
			case "image":
				if v := attrValue(n, "href"); v != "" {
					refs = append(refs, v)
				} else if v := attrValue(n, "xlink:href"); v != "" {
					refs = append(refs, v)
				}
			case "link":
				if v := attrValue(n, "href"); v != "" {
					refs = append(refs, v)
				}
			case "style":
				refs = append(refs, cssRefs([]byte(nodeText(n)))...)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return refs
}

// cssRefs extracts url() and @import references from stylesheet bytes.
func cssRefs(data []byte) []string {
	var refs []string
	for _, m := range cssURLPattern.FindAllSubmatch(data, -1) {
		refs = append(refs, string(m[1]))
	}
	for _, m := range cssImportPattern.FindAllSubmatch(data, -1) {
		refs = append(refs, string(m[1]))
	}
	return refs
}

// resolveRef resolves a reference relative to the referencing file and
// rejects anything that escapes the archive or is not archive-local.
func resolveRef(basePath, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return ""
	}
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return ""
	}
	joined := path.Clean(path.Join(path.Dir(basePath), ref))
	if joined == ".." || strings.HasPrefix(joined, "../") || strings.HasPrefix(joined, "/") {
		return ""
	}
	return joined
}

func isContentPath(zp string) bool {
	switch strings.ToLower(path.Ext(zp)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}
