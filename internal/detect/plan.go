package detect

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoStructureFound is returned by explicit-only detection when the
	// document carries no usable navigation outline.
	ErrNoStructureFound = errors.New("detect: no explicit structure found")

	// ErrNoChaptersDetected is returned when combination produced an
	// empty plan under a strategy that permits no fallback.
	ErrNoChaptersDetected = errors.New("detect: no chapters detected")
)

// Chapter is one entry of the final plan.
type Chapter struct {
	Index      int    // 1-based, sequential
	Title      string
	Start      int    // first content-unit index
	End        int    // exclusive
	Confidence float64
	Source     Signal
}

// UnitCount returns the number of content units the chapter spans.
func (c Chapter) UnitCount() int { return c.End - c.Start }

func (c Chapter) String() string {
	return fmt.Sprintf("%s (units %d-%d)", c.Title, c.Start, c.End-1)
}

// Decision records one step of the strategy fallback chain, making "why
// this plan was chosen" auditable instead of inferred from control flow.
type Decision struct {
	Signal Signal
	Action string // "selected", "rejected", "synthesized"
	Reason string
}

// Plan is the final contiguous, non-overlapping partition of the
// document's content units into chapters.
type Plan struct {
	Chapters   []Chapter
	Decisions  []Decision
	Strategy   Strategy
	UnitCount  int
	HasOutline bool
}

// Validate checks the plan invariants: chapters cover [0, UnitCount)
// exactly, starts strictly increase, and no chapter is empty.
func (p *Plan) Validate() error {
	if len(p.Chapters) == 0 {
		return ErrNoChaptersDetected
	}
	if p.Chapters[0].Start != 0 {
		return fmt.Errorf("detect: plan does not start at unit 0 (starts at %d)", p.Chapters[0].Start)
	}
	for i, ch := range p.Chapters {
		if ch.Index != i+1 {
			return fmt.Errorf("detect: chapter %d has index %d", i, ch.Index)
		}
		if ch.End <= ch.Start {
			return fmt.Errorf("detect: chapter %d is empty [%d, %d)", ch.Index, ch.Start, ch.End)
		}
		if i+1 < len(p.Chapters) && ch.End != p.Chapters[i+1].Start {
			return fmt.Errorf("detect: gap between chapter %d and %d", ch.Index, ch.Index+1)
		}
	}
	if last := p.Chapters[len(p.Chapters)-1]; last.End != p.UnitCount {
		return fmt.Errorf("detect: plan ends at %d, document has %d units", last.End, p.UnitCount)
	}
	return nil
}

// Summary renders a human-readable account of the detection outcome.
func (p *Plan) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "strategy: %s\n", p.Strategy)
	fmt.Fprintf(&sb, "content units: %d\n", p.UnitCount)
	fmt.Fprintf(&sb, "has outline: %v\n", p.HasOutline)
	fmt.Fprintf(&sb, "chapters: %d\n", len(p.Chapters))
	for _, d := range p.Decisions {
		fmt.Fprintf(&sb, "  [%s] %s: %s\n", d.Signal, d.Action, d.Reason)
	}
	return sb.String()
}

func (p *Plan) decide(signal Signal, action, reason string) {
	p.Decisions = append(p.Decisions, Decision{Signal: signal, Action: action, Reason: reason})
}
