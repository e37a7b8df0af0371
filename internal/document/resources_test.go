package document

import (
	"reflect"
	"testing"
)

func TestResourceClosure_TransitiveReferences(t *testing.T) {
	files := map[string][]byte{
		"OEBPS/ch1.xhtml": []byte(`<html><head>
			<link rel="stylesheet" href="css/main.css"/>
			</head><body><img src="images/fig1.png"/></body></html>`),
		"OEBPS/css/main.css":      []byte(`@import "fonts.css"; body { background: url("../images/bg.jpg"); }`),
		"OEBPS/css/fonts.css":     []byte(`@font-face { src: url(../fonts/serif.ttf); }`),
		"OEBPS/fonts/serif.ttf":   {0x00},
		"OEBPS/images/fig1.png":   {0x89},
		"OEBPS/images/bg.jpg":     {0xff},
		"OEBPS/images/unused.png": {0x89},
		"OEBPS/ch2.xhtml":         []byte(`<html><body><img src="images/unused.png"/></body></html>`),
	}

	got := resourceClosure(files, []string{"OEBPS/ch1.xhtml"})
	want := []string{
		"OEBPS/css/fonts.css",
		"OEBPS/css/main.css",
		"OEBPS/fonts/serif.ttf",
		"OEBPS/images/bg.jpg",
		"OEBPS/images/fig1.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("closure = %v, want %v", got, want)
	}
}

func TestResourceClosure_ExcludesContentDocuments(t *testing.T) {
	files := map[string][]byte{
		"ch1.xhtml": []byte(`<html><head><link href="ch2.xhtml"/></head><body><img src="pic.png"/></body></html>`),
		"ch2.xhtml": []byte(`<html><body></body></html>`),
		"pic.png":   {0x89},
	}

	got := resourceClosure(files, []string{"ch1.xhtml"})
	want := []string{"pic.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("closure = %v, want %v", got, want)
	}
}

func TestResourceClosure_CyclicStylesheets(t *testing.T) {
	files := map[string][]byte{
		"ch1.xhtml": []byte(`<html><head><link href="a.css"/></head><body></body></html>`),
		"a.css":     []byte(`@import "b.css";`),
		"b.css":     []byte(`@import "a.css";`),
	}

	got := resourceClosure(files, []string{"ch1.xhtml"})
	want := []string{"a.css", "b.css"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("closure = %v, want %v", got, want)
	}
}

func TestResolveRef(t *testing.T) {
	tests := []struct {
		base, ref string
		want      string
	}{
		{"OEBPS/ch1.xhtml", "images/pic.png", "OEBPS/images/pic.png"},
		{"OEBPS/css/main.css", "../images/bg.jpg", "OEBPS/images/bg.jpg"},
		{"ch1.xhtml", "pic.png", "pic.png"},
		{"ch1.xhtml", "pic.png#frag", "pic.png"},
		{"ch1.xhtml", "http://example.com/pic.png", ""},
		{"ch1.xhtml", "data:image/png;base64,AAAA", ""},
		{"ch1.xhtml", "../outside.png", ""},
		{"OEBPS/ch1.xhtml", "../../outside.png", ""},
		{"ch1.xhtml", "/absolute.png", "absolute.png"},
		{"ch1.xhtml", "", ""},
		{"ch1.xhtml", "#frag-only", ""},
	}
	for _, tt := range tests {
		if got := resolveRef(tt.base, tt.ref); got != tt.want {
			t.Errorf("resolveRef(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

func TestCSSRefs(t *testing.T) {
	css := []byte(`
		@import "reset.css";
		@import url(theme.css);
		body { background: url('bg.png'); }
		h1 { background-image: url("banner.jpg"); }
	`)

	got := cssRefs(css)
	want := []string{"theme.css", "bg.png", "banner.jpg", "reset.css"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("cssRefs = %v, want %v", got, want)
	}
}

func TestRelHref(t *testing.T) {
	tests := []struct {
		opfDir, zp string
		want       string
	}{
		{"", "ch1.xhtml", "ch1.xhtml"},
		{"OEBPS", "OEBPS/ch1.xhtml", "ch1.xhtml"},
		{"OEBPS", "OEBPS/images/pic.png", "images/pic.png"},
		{"OEBPS", "cover.png", "../cover.png"},
		{"a/b", "a/c/style.css", "../c/style.css"},
	}
	for _, tt := range tests {
		if got := relHref(tt.opfDir, tt.zp); got != tt.want {
			t.Errorf("relHref(%q, %q) = %q, want %q", tt.opfDir, tt.zp, got, tt.want)
		}
	}
}
