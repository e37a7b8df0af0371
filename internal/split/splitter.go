package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgallion1/chapsplit/internal/detect"
	"github.com/dgallion1/chapsplit/internal/document"
)

// Options controls split materialization.
type Options struct {
	OutputDir        string
	Pattern          string // filename pattern; DefaultPattern when empty
	PreserveMetadata bool
	Workers          int // bounded write concurrency; defaults to 4
}

// Result is one successfully produced output document.
type Result struct {
	Chapter   detect.Chapter
	Path      string
	Bytes     int64
	Resources []string // copied asset hrefs (container outputs only)
}

// ChapterError is a non-fatal per-chapter write failure, reported
// alongside successful results so a partial split is still useful.
type ChapterError struct {
	Chapter detect.Chapter
	Err     error
}

func (e *ChapterError) Error() string {
	return fmt.Sprintf("chapter %d %q: %v", e.Chapter.Index, e.Chapter.Title, e.Err)
}

func (e *ChapterError) Unwrap() error { return e.Err }

// maxWriteAttempts allows one retry for a chapter write failing on a
// transient I/O error. Detection is deterministic and never retried.
const maxWriteAttempts = 2

// Split materializes every chapter of the plan as its own output
// document. Chapters have disjoint unit ranges and output paths, so they
// are written concurrently with bounded parallelism. The pattern is
// validated before any I/O; a cancelled context stops dispatching new
// chapters and lets in-flight writes finish or clean up.
func Split(ctx context.Context, doc document.Document, plan *detect.Plan, opts Options, log *slog.Logger) ([]Result, []ChapterError, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	if err := ValidatePattern(opts.Pattern); err != nil {
		return nil, nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("split: create output dir: %w", err)
	}

	ext := document.OutputExt(doc)

	type outcome struct {
		result Result
		err    *ChapterError
	}
	results := make(chan outcome, len(plan.Chapters))
	sem := make(chan struct{}, opts.Workers)

	dispatched := 0
	for _, ch := range plan.Chapters {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		dispatched++
		go func(ch detect.Chapter) {
			defer func() { <-sem }()
			dest := filepath.Join(opts.OutputDir, RenderFilename(opts.Pattern, ch, ext))
			info, err := writeChapter(ctx, doc, ch, dest, opts, log)
			if err != nil {
				results <- outcome{err: &ChapterError{Chapter: ch, Err: err}}
				return
			}
			results <- outcome{result: Result{
				Chapter:   ch,
				Path:      dest,
				Bytes:     info.Bytes,
				Resources: info.Resources,
			}}
		}(ch)
	}

	var ok []Result
	var failed []ChapterError
	for range dispatched {
		o := <-results
		if o.err != nil {
			log.Error("chapter write failed", "chapter", o.err.Chapter.Index, "error", o.err.Err)
			failed = append(failed, *o.err)
			continue
		}
		log.Info("chapter written",
			"chapter", o.result.Chapter.Index,
			"path", o.result.Path,
			"bytes", o.result.Bytes,
		)
		ok = append(ok, o.result)
	}

	sort.Slice(ok, func(i, j int) bool { return ok[i].Chapter.Index < ok[j].Chapter.Index })
	sort.Slice(failed, func(i, j int) bool { return failed[i].Chapter.Index < failed[j].Chapter.Index })

	if err := ctx.Err(); err != nil && dispatched < len(plan.Chapters) {
		return ok, failed, err
	}
	return ok, failed, nil
}

// writeChapter writes one chapter, retrying once on a transient failure.
// A partial output file is removed on failure so a failed chapter leaves
// nothing behind.
func writeChapter(ctx context.Context, doc document.Document, ch detect.Chapter, dest string, opts Options, log *slog.Logger) (document.WriteInfo, error) {
	wopts := document.WriteOptions{
		PreserveMetadata: opts.PreserveMetadata,
		Title:            ch.Title,
	}

	var info document.WriteInfo
	var err error
	for attempt := range maxWriteAttempts {
		info, err = doc.WriteSlice(ctx, ch.Start, ch.End, dest, wopts)
		if err == nil {
			return info, nil
		}
		os.Remove(dest)
		if !isTransient(err) || attempt+1 == maxWriteAttempts {
			break
		}
		log.Warn("retrying chapter write", "chapter", ch.Index, "attempt", attempt, "error", err)
		select {
		case <-time.After(writeBackoff(attempt)):
		case <-ctx.Done():
			return document.WriteInfo{}, ctx.Err()
		}
	}
	return document.WriteInfo{}, err
}

// isTransient reports whether a write failure is worth one retry.
// Cancellation and range errors are permanent.
func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// writeBackoff returns the delay before retry attempt n, with jitter.
func writeBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}
