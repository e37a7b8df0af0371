package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/chapsplit/internal/detect"
	"github.com/dgallion1/chapsplit/internal/document"
	"github.com/dgallion1/chapsplit/internal/split"
)

const usage = `chapsplit splits a structured document into per-chapter files.

Usage:
  chapsplit detect [flags] <document>   show the detected chapter plan
  chapsplit split  [flags] <document>   write one output file per chapter

Flags:
  -strategy string      detection strategy: explicit-only, heuristic-only, hybrid (default "hybrid")
  -sensitivity string   heuristic sensitivity: low, medium, high (default "medium")
  -level int            hierarchy level to split at, 1 = top-level chapters (default 1)
  -out string           output directory for split (default "out")
  -pattern string       output filename pattern (default "{index:02d}_{title}")
  -workers int          concurrent chapter writes (default 4)
  -no-metadata          do not carry source metadata into outputs
  -v                    verbose logging
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	strategy := fs.String("strategy", "hybrid", "detection strategy")
	sensitivity := fs.String("sensitivity", "medium", "heuristic sensitivity")
	level := fs.Int("level", 1, "hierarchy level to split at")
	outDir := fs.String("out", "out", "output directory")
	pattern := fs.String("pattern", split.DefaultPattern, "output filename pattern")
	workers := fs.Int("workers", 4, "concurrent chapter writes")
	noMetadata := fs.Bool("no-metadata", false, "do not carry source metadata into outputs")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	path := fs.Arg(0)

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	opts := detect.Options{
		Strategy:            detect.ParseStrategy(*strategy),
		Sensitivity:         detect.ParseSensitivity(*sensitivity),
		HierarchyLevel:      *level,
		MinFrontMatterUnits: detect.DefaultOptions().MinFrontMatterUnits,
	}

	var err error
	switch cmd {
	case "detect":
		err = runDetect(path, opts)
	case "split":
		err = runSplit(path, opts, split.Options{
			OutputDir:        *outDir,
			Pattern:          *pattern,
			PreserveMetadata: !*noMetadata,
			Workers:          *workers,
		}, log)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "chapsplit: %v\n", err)
		os.Exit(1)
	}
}

func runDetect(path string, opts detect.Options) error {
	doc, err := document.Open(path)
	if err != nil {
		return err
	}
	defer doc.Close()

	plan, err := detect.Detect(doc, opts)
	if err != nil {
		return err
	}

	fmt.Println(plan.Summary())
	for _, ch := range plan.Chapters {
		fmt.Println("  " + ch.String())
	}
	return nil
}

func runSplit(path string, opts detect.Options, sopts split.Options, log *slog.Logger) error {
	doc, err := document.Open(path)
	if err != nil {
		return err
	}
	defer doc.Close()

	plan, err := detect.Detect(doc, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, failures, err := split.Split(ctx, doc, plan, sopts, log)
	for _, res := range results {
		fmt.Printf("wrote %s (%d bytes)\n", res.Path, res.Bytes)
	}
	for _, fe := range failures {
		fmt.Fprintf(os.Stderr, "chapter %d %q failed: %v\n", fe.Chapter.Index, fe.Chapter.Title, fe.Err)
	}
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		return errors.New("some chapters failed to write")
	}
	return nil
}
