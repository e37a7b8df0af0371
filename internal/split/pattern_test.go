package split

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/chapsplit/internal/detect"
)

func TestValidatePattern(t *testing.T) {
	valid := []string{
		DefaultPattern,
		"{index}_{title}",
		"{index:03d}-{title}",
		"{title}_p{start}-{end}",
		"chapter_{index}_{pages}pp",
		"no_placeholders_at_all",
	}
	for _, p := range valid {
		if err := ValidatePattern(p); err != nil {
			t.Errorf("ValidatePattern(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"{chapter}_{title}",
		"{index:3d}_{title}",
		"{Index}",
		"{}",
	}
	for _, p := range invalid {
		err := ValidatePattern(p)
		if !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("ValidatePattern(%q) = %v, want ErrInvalidPattern", p, err)
		}
	}
}

func TestRenderFilename(t *testing.T) {
	ch := detect.Chapter{Index: 3, Title: "Intro: Basics", Start: 10, End: 15}

	tests := []struct {
		pattern string
		ext     string
		want    string
	}{
		{"{index:02d}_{title}", ".pdf", "03_Intro_Basics.pdf"},
		{"{index}_{title}", ".epub", "3_Intro_Basics.epub"},
		{"{index:04d}", ".pdf", "0003.pdf"},
		{"{title}_p{start}-{end}", ".pdf", "Intro_Basics_p11-15.pdf"},
		{"{title}_{pages}pp", ".pdf", "Intro_Basics_5pp.pdf"},
		{"{index}.pdf", ".pdf", "3.pdf"},
		{"{index}.PDF", ".pdf", "3.PDF"},
	}
	for _, tt := range tests {
		if got := RenderFilename(tt.pattern, ch, tt.ext); got != tt.want {
			t.Errorf("RenderFilename(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain Title", "Plain_Title"},
		{"Intro: Basics", "Intro_Basics"},
		{`What/About\These|Chars?`, "What_About_These_Chars"},
		{"  spaced   out  ", "spaced_out"},
		{"___already___underscored___", "already_underscored"},
		{"<>:\"/\\|?*", "untitled"},
		{"", "untitled"},
		{"Глава 1: Начало", "Глава_1_Начало"},
	}
	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeTitle_CapsLongTitles(t *testing.T) {
	long := strings.Repeat("verylongword ", 30)
	got := SanitizeTitle(long)
	if n := len([]rune(got)); n > 100 {
		t.Errorf("sanitized title is %d runes, want <= 100", n)
	}
	if strings.HasSuffix(got, "_") {
		t.Errorf("sanitized title has trailing underscore: %q", got)
	}
}
