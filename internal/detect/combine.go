package detect

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/chapsplit/internal/document"
)

// Strategy selects how candidate lists are combined into a plan.
type Strategy string

const (
	// StrategyExplicit uses the navigation outline only and fails when
	// the document has none.
	StrategyExplicit Strategy = "explicit-only"
	// StrategyHeuristic uses the structural scan (falling to the
	// manifest for containers) and never fails.
	StrategyHeuristic Strategy = "heuristic-only"
	// StrategyHybrid tries the outline, then the scan, then the
	// manifest: a strict fallback chain so noisy heuristic candidates
	// never dilute trusted metadata.
	StrategyHybrid Strategy = "hybrid"
)

// ParseStrategy maps a user-facing string to a Strategy, defaulting to
// hybrid.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(s)) {
	case StrategyExplicit:
		return StrategyExplicit
	case StrategyHeuristic:
		return StrategyHeuristic
	default:
		return StrategyHybrid
	}
}

// Options controls detection.
type Options struct {
	Strategy    Strategy
	Sensitivity Sensitivity
	// HierarchyLevel is 1-based: level L keeps candidates with nesting
	// depth < L; deeper candidates are absorbed into their nearest
	// surviving ancestor's range. Zero means level 1.
	HierarchyLevel int
	// MinFrontMatterUnits is the smallest leading span that becomes a
	// synthetic front-matter chapter instead of merging into chapter 1.
	MinFrontMatterUnits int
}

// DefaultOptions returns the defaults the CLI and server use.
func DefaultOptions() Options {
	return Options{
		Strategy:            StrategyHybrid,
		Sensitivity:         SensitivityMedium,
		HierarchyLevel:      1,
		MinFrontMatterUnits: 2,
	}
}

// minCandidates is the bar a signal must clear in the hybrid chain before
// lower-priority signals stop being consulted.
const minCandidates = 2

// Detect runs candidate extraction and strategy combination, producing
// the final chapter plan. Detection is pure: same document and options,
// same plan.
func Detect(doc document.Document, opts Options) (*Plan, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyHybrid
	}
	if opts.Sensitivity == "" {
		opts.Sensitivity = SensitivityMedium
	}
	if opts.HierarchyLevel < 1 {
		opts.HierarchyLevel = 1
	}

	n := len(doc.Units())
	if n == 0 {
		return nil, fmt.Errorf("%w: document has no content units", ErrNoChaptersDetected)
	}

	plan := &Plan{
		Strategy:   opts.Strategy,
		UnitCount:  n,
		HasOutline: len(doc.Outline()) > 0,
	}
	maxDepth := opts.HierarchyLevel - 1

	cands, err := selectCandidates(doc, opts, plan, maxDepth)
	if err != nil {
		return nil, err
	}

	plan.Chapters = resolveRanges(cands, n, opts.MinFrontMatterUnits)
	if len(plan.Chapters) == 0 {
		return nil, ErrNoChaptersDetected
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// selectCandidates walks the strategy's signal chain and returns the
// winning depth-filtered candidate list, recording every step in the
// plan's decision log.
func selectCandidates(doc document.Document, opts Options, plan *Plan, maxDepth int) ([]Candidate, error) {
	switch opts.Strategy {
	case StrategyExplicit:
		cands := filterDepth(FromOutline(doc), maxDepth)
		if len(cands) == 0 {
			plan.decide(SignalOutline, "rejected", "no usable navigation outline")
			return nil, ErrNoStructureFound
		}
		plan.decide(SignalOutline, "selected", fmt.Sprintf("%d outline candidates", len(cands)))
		return cands, nil

	case StrategyHeuristic:
		if cands := filterDepth(FromScan(doc, opts.Sensitivity), maxDepth); len(cands) > 0 {
			plan.decide(SignalScan, "selected", fmt.Sprintf("%d scan candidates", len(cands)))
			return cands, nil
		}
		plan.decide(SignalScan, "rejected", "scan produced no candidates")
		if cands := FromManifest(doc); len(cands) > 0 {
			plan.decide(SignalManifest, "selected", fmt.Sprintf("%d manifest entries", len(cands)))
			return cands, nil
		}
		plan.decide(SignalFallback, "synthesized", "whole document as one chapter")
		return []Candidate{wholeDocumentCandidate(doc)}, nil

	default: // hybrid
		if cands := filterDepth(FromOutline(doc), maxDepth); len(cands) >= minCandidates {
			plan.decide(SignalOutline, "selected", fmt.Sprintf("%d outline candidates", len(cands)))
			return cands, nil
		}
		plan.decide(SignalOutline, "rejected", fmt.Sprintf("fewer than %d outline candidates", minCandidates))

		if cands := filterDepth(FromScan(doc, opts.Sensitivity), maxDepth); len(cands) >= minCandidates {
			plan.decide(SignalScan, "selected", fmt.Sprintf("%d scan candidates", len(cands)))
			return cands, nil
		}
		plan.decide(SignalScan, "rejected", fmt.Sprintf("fewer than %d scan candidates at requested depth", minCandidates))

		if cands := FromManifest(doc); len(cands) > 0 {
			plan.decide(SignalManifest, "selected", fmt.Sprintf("%d manifest entries", len(cands)))
			return cands, nil
		}
		plan.decide(SignalFallback, "synthesized", "whole document as one chapter")
		return []Candidate{wholeDocumentCandidate(doc)}, nil
	}
}

// filterDepth keeps candidates with depth <= maxDepth. Deeper candidates
// do not create chapters; their content falls into the surviving
// candidate that precedes them.
func filterDepth(cands []Candidate, maxDepth int) []Candidate {
	out := cands[:0:0]
	for _, c := range cands {
		if c.Depth <= maxDepth {
			out = append(out, c)
		}
	}
	return out
}

// resolveRanges turns an ordered candidate list into contiguous chapter
// ranges covering [0, unitCount).
func resolveRanges(cands []Candidate, unitCount, minFrontMatter int) []Chapter {
	if len(cands) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	// Stable keeps extraction order for identical starts; the merge
	// below then keeps the first.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := sorted[:0]
	for _, c := range sorted {
		if len(merged) > 0 && merged[len(merged)-1].Start == c.Start {
			continue
		}
		if c.Start < 0 || c.Start >= unitCount {
			continue
		}
		merged = append(merged, c)
	}
	if len(merged) == 0 {
		return nil
	}

	// A non-trivial leading span becomes a synthetic front-matter
	// chapter; a trivial one merges into chapter 1.
	if first := merged[0].Start; first > 0 {
		if first > minFrontMatter {
			merged = append([]Candidate{{
				Title:      "Front Matter",
				Start:      0,
				Confidence: 1.0,
				Source:     SignalFallback,
			}}, merged...)
		} else {
			merged[0].Start = 0
		}
	}

	chapters := make([]Chapter, 0, len(merged))
	for i, c := range merged {
		end := unitCount
		if i+1 < len(merged) {
			end = merged[i+1].Start
		}
		chapters = append(chapters, Chapter{
			Index:      i + 1,
			Title:      c.Title,
			Start:      c.Start,
			End:        end,
			Confidence: c.Confidence,
			Source:     c.Source,
		})
	}
	return chapters
}

// wholeDocumentCandidate synthesizes the single-chapter floor.
func wholeDocumentCandidate(doc document.Document) Candidate {
	title := doc.Metadata().Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(doc.Path()), filepath.Ext(doc.Path()))
	}
	if title == "" {
		title = "Complete Document"
	}
	return Candidate{Title: title, Start: 0, Confidence: 1.0, Source: SignalFallback}
}
