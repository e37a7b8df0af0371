package detect

import (
	"regexp"
	"strings"
)

// Signal identifies which extraction signal produced a candidate.
type Signal string

const (
	// SignalOutline is the explicit-structure signal: an embedded
	// navigation outline (PDF bookmarks, EPUB NCX).
	SignalOutline Signal = "outline"
	// SignalScan is the structural-scan signal: font-size and heading
	// heuristics over the content itself.
	SignalScan Signal = "scan"
	// SignalManifest is the container fallback: one chapter per declared
	// content file.
	SignalManifest Signal = "manifest"
	// SignalFallback marks synthesized chapters (whole document, front
	// matter) that no extraction signal proposed.
	SignalFallback Signal = "fallback"
)

// Candidate is a tentative chapter boundary proposed by one signal.
type Candidate struct {
	Title      string
	Start      int // content-unit index the chapter begins at
	Depth      int // 0 = top level
	Confidence float64
	Source     Signal
}

// Sensitivity tunes how aggressive the structural scan is.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// minConfidence is the scan-candidate floor for this sensitivity.
func (s Sensitivity) minConfidence() float64 {
	switch s {
	case SensitivityLow:
		return 0.75
	case SensitivityHigh:
		return 0.3
	default:
		return 0.5
	}
}

// fontRatio is the multiple of the body font size a run must reach to
// count as a font-size anomaly.
func (s Sensitivity) fontRatio() float64 {
	switch s {
	case SensitivityLow:
		return 1.5
	case SensitivityHigh:
		return 1.2
	default:
		return 1.3
	}
}

// ParseSensitivity maps a user-facing string to a Sensitivity, defaulting
// to medium.
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(strings.ToLower(s)) {
	case SensitivityLow:
		return SensitivityLow
	case SensitivityHigh:
		return SensitivityHigh
	default:
		return SensitivityMedium
	}
}

// Chapter-class heading patterns: a chapter keyword followed by a numeric,
// roman, or spelled-out ordinal, or a "1. Title" numbered heading.
var chapterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^chapter\s+(\d+|[ivxlcdm]+)\b[\s:.\-]*`),
	regexp.MustCompile(`(?i)^part\s+(\d+|[ivxlcdm]+)\b[\s:.\-]*`),
	regexp.MustCompile(`(?i)^(chapter|part)\s+(one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\b`),
	regexp.MustCompile(`^(\d+)\.\s+\S`),
}

// matchesChapterPattern reports whether text looks like an explicit
// chapter heading.
func matchesChapterPattern(text string) bool {
	text = strings.TrimSpace(text)
	for _, p := range chapterPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// lengthPenalty lowers confidence for improbably long headings.
func lengthPenalty(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words > 10:
		return 0.2
	case words > 6:
		return 0.1
	}
	return 0
}

// dedupeCandidates removes candidates sharing a start index within one
// signal, keeping the highest confidence (first on ties).
func dedupeCandidates(cands []Candidate) []Candidate {
	if len(cands) < 2 {
		return cands
	}
	best := make(map[int]int, len(cands))
	var out []Candidate
	for _, c := range cands {
		if i, ok := best[c.Start]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		best[c.Start] = len(out)
		out = append(out, c)
	}
	return out
}
