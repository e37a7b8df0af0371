package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgallion1/chapsplit/internal/config"
)

const testAPIKey = "test-key"

const testManuscript = `# Chapter 1

Opening material.

# Chapter 2

Middle material.

# Chapter 3

Closing material.
`

func testServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		APIKey:              testAPIKey,
		Strategy:            "hybrid",
		Sensitivity:         "medium",
		HierarchyLevel:      1,
		MinFrontMatterUnits: 2,
		OutputDir:           t.TempDir(),
		FilenamePattern:     "{index:02d}_{title}",
		SplitWorkers:        2,
		PreserveMetadata:    true,
		MaxUploadBytes:      10 << 20,
	}
	return NewServer(log, cfg)
}

func uploadRequest(t *testing.T, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDetectRequiresAuth(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/detect", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDetectEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/api/detect", "book.md", testManuscript, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Units    int `json:"units"`
		Chapters []struct {
			Index int    `json:"index"`
			Title string `json:"title"`
		} `json:"chapters"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %+v", resp.Chapters)
	}
	if resp.Chapters[0].Title != "Chapter 1" {
		t.Errorf("first chapter title = %q", resp.Chapters[0].Title)
	}
}

func TestDetectRejectsUnsupportedType(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/api/detect", "notes.txt", "plain text", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSplitEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/api/split", "book.md", testManuscript, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Outputs []struct {
			Chapter int    `json:"chapter"`
			Path    string `json:"path"`
			Bytes   int64  `json:"bytes"`
		} `json:"outputs"`
		Failures []any `json:"failures"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", resp.Failures)
	}
	if len(resp.Outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %+v", resp.Outputs)
	}
	for _, o := range resp.Outputs {
		if o.Bytes == 0 {
			t.Errorf("output %d has no bytes", o.Chapter)
		}
	}
}

func TestSplitRejectsInvalidPattern(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/api/split", "book.md", testManuscript, map[string]string{
		"pattern": "{bogus}",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
