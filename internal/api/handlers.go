package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/chapsplit/internal/detect"
	"github.com/dgallion1/chapsplit/internal/document"
	"github.com/dgallion1/chapsplit/internal/split"
)

// chapterJSON is the wire shape of one plan entry.
type chapterJSON struct {
	Index      int     `json:"index"`
	Title      string  `json:"title"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Units      int     `json:"units"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type decisionJSON struct {
	Signal string `json:"signal"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// handleDetect runs detection on an uploaded document and returns the
// chapter plan without writing anything.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	doc, cleanup, ok := s.openUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	plan, err := detect.Detect(doc, s.detectOptions(r))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, detect.ErrNoStructureFound) || errors.Is(err, detect.ErrNoChaptersDetected) {
			status = http.StatusUnprocessableEntity
		}
		jsonError(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"strategy":    string(plan.Strategy),
		"units":       plan.UnitCount,
		"has_outline": plan.HasOutline,
		"chapters":    planChapters(plan),
		"decisions":   planDecisions(plan),
	})
}

// handleSplit runs detection and materializes one output per chapter in a
// server-side directory. Per-chapter write failures are reported next to
// the successful results.
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	doc, cleanup, ok := s.openUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	plan, err := detect.Detect(doc, s.detectOptions(r))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, detect.ErrNoStructureFound) || errors.Is(err, detect.ErrNoChaptersDetected) {
			status = http.StatusUnprocessableEntity
		}
		jsonError(w, err.Error(), status)
		return
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		jsonError(w, "create output dir: "+err.Error(), http.StatusInternalServerError)
		return
	}
	// Each request gets its own subdirectory so concurrent splits of
	// same-named documents cannot clobber each other.
	outDir, err := os.MkdirTemp(s.cfg.OutputDir, "split-")
	if err != nil {
		jsonError(w, "create output dir: "+err.Error(), http.StatusInternalServerError)
		return
	}

	opts := split.Options{
		OutputDir:        outDir,
		Pattern:          s.cfg.FilenamePattern,
		PreserveMetadata: s.cfg.PreserveMetadata,
		Workers:          s.cfg.SplitWorkers,
	}
	if v := r.FormValue("pattern"); v != "" {
		opts.Pattern = v
	}
	if r.FormValue("preserve_metadata") == "false" {
		opts.PreserveMetadata = false
	}

	results, failures, err := split.Split(r.Context(), doc, plan, opts, s.log)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, split.ErrInvalidPattern) {
			status = http.StatusBadRequest
		}
		jsonError(w, err.Error(), status)
		return
	}

	outputs := make([]map[string]any, 0, len(results))
	for _, res := range results {
		outputs = append(outputs, map[string]any{
			"chapter":   res.Chapter.Index,
			"title":     res.Chapter.Title,
			"path":      res.Path,
			"bytes":     res.Bytes,
			"resources": res.Resources,
		})
	}
	failed := make([]map[string]any, 0, len(failures))
	for _, fe := range failures {
		failed = append(failed, map[string]any{
			"chapter": fe.Chapter.Index,
			"title":   fe.Chapter.Title,
			"error":   fe.Err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"output_dir": outDir,
		"chapters":   planChapters(plan),
		"outputs":    outputs,
		"failures":   failed,
	})
}

// openUpload receives the multipart upload, spools it to a temp file, and
// opens it as a Document. The returned cleanup closes the document and
// removes the temp file.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (document.Document, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !document.SupportedExtensions[ext] {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", ext), http.StatusBadRequest)
		return nil, nil, false
	}

	tmpPath, err := spoolUpload(file, ext, s.cfg.MaxUploadBytes)
	if err != nil {
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return nil, nil, false
	}

	doc, err := document.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		jsonError(w, "unreadable document: "+err.Error(), http.StatusUnprocessableEntity)
		return nil, nil, false
	}

	cleanup := func() {
		doc.Close()
		os.Remove(tmpPath)
	}
	return doc, cleanup, true
}

// spoolUpload writes the uploaded file to a temp path with the original
// extension so the adapter dispatch can see it.
func spoolUpload(file multipart.File, ext string, maxBytes int64) (string, error) {
	tmp, err := os.CreateTemp("", "chapsplit-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(file, maxBytes+1))
	tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("read upload: %w", err)
	}
	if n > maxBytes {
		os.Remove(tmpPath)
		return "", fmt.Errorf("file exceeds max size (%d bytes)", maxBytes)
	}
	return tmpPath, nil
}

// detectOptions builds detection options from form values with config
// defaults.
func (s *Server) detectOptions(r *http.Request) detect.Options {
	opts := detect.Options{
		Strategy:            detect.ParseStrategy(s.cfg.Strategy),
		Sensitivity:         detect.ParseSensitivity(s.cfg.Sensitivity),
		HierarchyLevel:      s.cfg.HierarchyLevel,
		MinFrontMatterUnits: s.cfg.MinFrontMatterUnits,
	}
	if v := r.FormValue("strategy"); v != "" {
		opts.Strategy = detect.ParseStrategy(v)
	}
	if v := r.FormValue("sensitivity"); v != "" {
		opts.Sensitivity = detect.ParseSensitivity(v)
	}
	if v := r.FormValue("level"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.HierarchyLevel = n
		}
	}
	return opts
}

func planChapters(plan *detect.Plan) []chapterJSON {
	out := make([]chapterJSON, 0, len(plan.Chapters))
	for _, ch := range plan.Chapters {
		out = append(out, chapterJSON{
			Index:      ch.Index,
			Title:      ch.Title,
			Start:      ch.Start,
			End:        ch.End,
			Units:      ch.UnitCount(),
			Confidence: ch.Confidence,
			Source:     string(ch.Source),
		})
	}
	return out
}

func planDecisions(plan *detect.Plan) []decisionJSON {
	out := make([]decisionJSON, 0, len(plan.Decisions))
	for _, d := range plan.Decisions {
		out = append(out, decisionJSON{Signal: string(d.Signal), Action: d.Action, Reason: d.Reason})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
