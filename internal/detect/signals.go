package detect

import (
	"strings"

	"github.com/dgallion1/chapsplit/internal/document"
)

// FromOutline extracts candidates from the document's embedded navigation
// outline. The outline is trusted metadata: every candidate gets full
// confidence. Returns nil when the document has no usable outline.
func FromOutline(doc document.Document) []Candidate {
	entries := doc.Outline()
	if len(entries) == 0 {
		return nil
	}

	cands := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if e.Unit < 0 || e.Unit >= len(doc.Units()) {
			continue
		}
		cands = append(cands, Candidate{
			Title:      e.Title,
			Start:      e.Unit,
			Depth:      e.Depth,
			Confidence: 1.0,
			Source:     SignalOutline,
		})
	}
	return singleUnitRule(dedupeCandidates(cands), len(doc.Units()))
}

// FromScan extracts candidates by scanning the content itself. Paginated
// documents are scanned for font-size anomalies and chapter-heading
// patterns; container documents for tier 1-3 heading elements.
func FromScan(doc document.Document, sens Sensitivity) []Candidate {
	units := doc.Units()
	var cands []Candidate
	if doc.Family() == document.FamilyPaginated {
		cands = scanRuns(units, sens)
	} else {
		cands = scanHeadings(units, sens)
	}
	return singleUnitRule(dedupeCandidates(cands), len(units))
}

// scanRuns flags at most one candidate per page: the first run that either
// matches a chapter-heading pattern or stands out from the estimated body
// font size.
func scanRuns(units []document.ContentUnit, sens Sensitivity) []Candidate {
	body := bodyFontSize(units)
	minConf := sens.minConfidence()
	ratio := sens.fontRatio()

	var cands []Candidate
	for _, u := range units {
		for ri, run := range u.Runs {
			pattern := matchesChapterPattern(run.Text)
			anomaly := body > 0 &&
				run.FontSize >= body*ratio &&
				len(strings.Fields(run.Text)) <= 10
			if !pattern && !anomaly {
				continue
			}

			var conf float64
			switch {
			case pattern:
				conf = 0.9
			case ri == 0:
				// Standalone large-font line at the top of the page.
				conf = 0.6
			default:
				conf = 0.4
			}
			conf -= lengthPenalty(run.Text)
			if conf < minConf {
				continue
			}

			cands = append(cands, Candidate{
				Title:      strings.TrimSpace(run.Text),
				Start:      u.Index,
				Confidence: conf,
				Source:     SignalScan,
			})
			break
		}
	}
	return cands
}

// scanHeadings turns tier 1-3 heading elements into candidates at depth
// tier-1. Bare headings score a flat 0.6, so low sensitivity keeps only
// explicit chapter-pattern headings.
func scanHeadings(units []document.ContentUnit, sens Sensitivity) []Candidate {
	minConf := sens.minConfidence()

	var cands []Candidate
	for _, u := range units {
		for _, h := range u.Headings {
			if h.Level < 1 || h.Level > 3 {
				continue
			}
			conf := 0.6
			if matchesChapterPattern(h.Text) {
				conf = 0.9
			}
			conf -= lengthPenalty(h.Text)
			if conf < minConf {
				continue
			}
			cands = append(cands, Candidate{
				Title:      h.Text,
				Start:      u.Index,
				Depth:      h.Level - 1,
				Confidence: conf,
				Source:     SignalScan,
			})
		}
	}
	return cands
}

// bodyFontSize estimates the document's body text size as the mean run
// font size.
func bodyFontSize(units []document.ContentUnit) float64 {
	var sum float64
	var n int
	for _, u := range units {
		for _, run := range u.Runs {
			if run.FontSize > 0 {
				sum += run.FontSize
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// FromManifest is the detection floor for container documents: every
// content file in reading order becomes its own low-confidence chapter.
// Returns nil for documents without a declared manifest.
func FromManifest(doc document.Document) []Candidate {
	lister, ok := doc.(document.ManifestLister)
	if !ok {
		return nil
	}
	titles := lister.ManifestTitles()

	cands := make([]Candidate, 0, len(titles))
	for i, title := range titles {
		cands = append(cands, Candidate{
			Title:      title,
			Start:      i,
			Confidence: 0.2,
			Source:     SignalManifest,
		})
	}
	return singleUnitRule(cands, len(doc.Units()))
}

// singleUnitRule collapses candidates for a single-unit document to
// exactly one candidate at index 0.
func singleUnitRule(cands []Candidate, unitCount int) []Candidate {
	if unitCount != 1 || len(cands) <= 1 {
		return cands
	}
	c := cands[0]
	c.Start = 0
	return []Candidate{c}
}
