package split

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/chapsplit/internal/detect"
)

// ErrInvalidPattern indicates the filename pattern references an unknown
// placeholder. It is raised before any file is written.
var ErrInvalidPattern = errors.New("split: invalid filename pattern")

// DefaultPattern is used when the caller supplies none. The source
// document's extension is appended at render time.
const DefaultPattern = "{index:02d}_{title}"

const maxTitleLength = 100

var (
	placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)
	indexPadPattern    = regexp.MustCompile(`^index:0(\d+)d$`)
	collapsePattern    = regexp.MustCompile(`[\s_]+`)
)

// ValidatePattern checks that every brace-delimited token in the pattern
// is a recognized placeholder: {index}, {index:0Nd}, {title}, {start},
// {end}, {pages}.
func ValidatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(pattern, -1) {
		tok := m[1]
		switch tok {
		case "index", "title", "start", "end", "pages":
			continue
		}
		if !indexPadPattern.MatchString(tok) {
			return fmt.Errorf("%w: unknown placeholder {%s}", ErrInvalidPattern, tok)
		}
	}
	return nil
}

// RenderFilename expands the pattern for one chapter. Start and end render
// as 1-based inclusive unit numbers. ext is appended when the rendered
// name does not already end with it.
func RenderFilename(pattern string, ch detect.Chapter, ext string) string {
	name := placeholderPattern.ReplaceAllStringFunc(pattern, func(m string) string {
		tok := m[1 : len(m)-1]
		switch tok {
		case "index":
			return strconv.Itoa(ch.Index)
		case "title":
			return SanitizeTitle(ch.Title)
		case "start":
			return strconv.Itoa(ch.Start + 1)
		case "end":
			return strconv.Itoa(ch.End)
		case "pages":
			return strconv.Itoa(ch.UnitCount())
		}
		if pm := indexPadPattern.FindStringSubmatch(tok); pm != nil {
			width, _ := strconv.Atoi(pm[1])
			return fmt.Sprintf("%0*d", width, ch.Index)
		}
		return m
	})

	if ext != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}
	return name
}

// SanitizeTitle makes a chapter title safe for use in a filename:
// reserved characters become underscores, runs of whitespace and
// underscores collapse, and the result is length-capped.
func SanitizeTitle(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}

	cleaned := collapsePattern.ReplaceAllString(sb.String(), "_")
	cleaned = strings.Trim(cleaned, "_")

	if runes := []rune(cleaned); len(runes) > maxTitleLength {
		cleaned = strings.TrimRight(string(runes[:maxTitleLength]), "_")
	}
	if cleaned == "" {
		cleaned = "untitled"
	}
	return cleaned
}
