package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- back-end stubs ---

func doclingStub(t *testing.T, markdown string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convert/file" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"document": map[string]any{"filename": "out.md", "md_content": markdown},
		})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func vlmStub(t *testing.T, reply string, status int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "stub failure", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// stubConvertTools writes fake soffice/pdfinfo/pdftoppm binaries and wires
// them in: soffice via config, the poppler pair via PATH.
func stubConvertTools(t *testing.T, cfg *Config, pages int) {
	t.Helper()
	dir := t.TempDir()

	writeTool := func(name, script string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	writeTool("soffice", `
target=""
outdir=""
input=""
while [ $# -gt 0 ]; do
  case "$1" in
    --convert-to) target="$2"; shift 2 ;;
    --outdir) outdir="$2"; shift 2 ;;
    -*) shift ;;
    *) input="$1"; shift ;;
  esac
done
base=$(basename "$input")
base="${base%.*}"
if [ "$target" = "pdf" ]; then
  printf '%%PDF-1.4 fake' > "$outdir/$base.$target"
else
  printf 'FAKE-ODT' > "$outdir/$base.$target"
fi
`)
	writeTool("pdfinfo", fmt.Sprintf(`echo "Pages: %d"`, pages))
	writeTool("pdftoppm", `
ext=""
page=""
prefix=""
while [ $# -gt 0 ]; do
  case "$1" in
    -png) ext=".png"; shift ;;
    -jpeg) ext=".jpg"; shift ;;
    -webp) ext=".webp"; shift ;;
    -f) page="$2"; shift 2 ;;
    -r|-l) shift 2 ;;
    -singlefile) shift ;;
    *) prefix="$1"; shift ;;
  esac
done
printf 'IMG%s' "$page" > "$prefix$ext"
`)

	cfg.Convert.SofficePath = filepath.Join(dir, "soffice")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// --- service/server helpers ---

func newTestServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()
	cfg.defaults()
	svc, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postFile(t *testing.T, url string, content []byte, filename string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeErrorBody(t *testing.T, resp *http.Response) (kind, message string) {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.Error, body.Message
}

// --- tests ---

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &Config{})
	resp, err := http.Get(srv.URL + "/api/convert/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}

func TestProfileSelection(t *testing.T) {
	tests := []struct {
		docling bool
		vlm     bool
		want    Profile
	}{
		{true, true, ProfileHybrid},
		{true, false, ProfileStructuredOnly},
		{false, true, ProfileVLMOnly},
		{false, false, ProfileFallbackText},
	}
	for _, tt := range tests {
		if got := selectProfile(tt.docling, tt.vlm); got != tt.want {
			t.Errorf("selectProfile(%v, %v) = %q, want %q", tt.docling, tt.vlm, got, tt.want)
		}
	}
}

func TestEmptyUploadRejectedEverywhere(t *testing.T) {
	srv := newTestServer(t, &Config{})
	for _, path := range []string{
		"/api/convert/odt", "/api/convert/pdf", "/api/convert/images", "/api/parse/parse",
	} {
		resp := postFile(t, srv.URL+path, nil, "empty.txt")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
			continue
		}
		if kind, _ := decodeErrorBody(t, resp); kind != "BAD_REQUEST" {
			t.Errorf("%s: kind = %q, want BAD_REQUEST", path, kind)
		}
	}
}

func TestConvertPDFFromText(t *testing.T) {
	cfg := &Config{}
	stubConvertTools(t, cfg, 1)
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/convert/pdf", []byte("hello"), "notes.txt")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "notes.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("body does not start with %%PDF: %q", body[:min(8, len(body))])
	}
}

func TestConvertPDFRejectsPDFInput(t *testing.T) {
	srv := newTestServer(t, &Config{})
	resp := postFile(t, srv.URL+"/api/convert/pdf", []byte("%PDF-1.4\n"), "already.pdf")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if kind, _ := decodeErrorBody(t, resp); kind != "BAD_REQUEST" {
		t.Errorf("kind = %q", kind)
	}
}

func TestConvertODTFromMarkdown(t *testing.T) {
	cfg := &Config{}
	stubConvertTools(t, cfg, 1)
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/convert/odt", []byte("# Title\n\nbody"), "doc.md")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != odtMIME {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "doc.odt") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestConvertODTRejectsUnsupportedCategory(t *testing.T) {
	srv := newTestServer(t, &Config{})
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	resp := postFile(t, srv.URL+"/api/convert/odt", png, "photo.png")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
	if kind, _ := decodeErrorBody(t, resp); kind != "UNSUPPORTED_MEDIA_TYPE" {
		t.Errorf("kind = %q", kind)
	}
}

func TestConvertImagesNDJSON(t *testing.T) {
	cfg := &Config{}
	stubConvertTools(t, cfg, 3)
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/convert/images?format=png&dpi=72", []byte("%PDF-1.4\n"), "doc.pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", ct)
	}

	var lines []pageImageResponse
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var line pageImageResponse
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if line.Page != i+1 {
			t.Errorf("line %d: page = %d", i, line.Page)
		}
		if line.TotalPages != 3 {
			t.Errorf("line %d: total_pages = %d", i, line.TotalPages)
		}
		if !strings.HasPrefix(line.EncodedURI, "data:image/png;base64,") {
			t.Errorf("line %d: encoded_uri prefix wrong: %q", i, line.EncodedURI)
		}
		if line.Size <= 0 {
			t.Errorf("line %d: size = %d", i, line.Size)
		}
	}
}

func TestConvertImagesBadFormat(t *testing.T) {
	srv := newTestServer(t, &Config{})
	resp := postFile(t, srv.URL+"/api/convert/images?format=tiff", []byte("%PDF-1.4\n"), "doc.pdf")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestParseFallbackText(t *testing.T) {
	srv := newTestServer(t, &Config{})

	resp := postFile(t, srv.URL+"/api/parse/parse", []byte("hello"), "note.txt")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Markdown != "hello" {
		t.Errorf("markdown = %q, want hello", result.Markdown)
	}
	if result.Filename != "note.txt" {
		t.Errorf("filename = %q", result.Filename)
	}
}

func TestParseHybridRejectsPlainText(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{doclingStub(t, "md")}
	cfg.Parser.VLM.Servers = []VLMServer{{BaseURL: vlmStub(t, "text", http.StatusOK), Model: "m"}}
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/parse/parse", []byte("hello"), "note.txt")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
	if kind, _ := decodeErrorBody(t, resp); kind != "UNSUPPORTED_MEDIA_TYPE" {
		t.Errorf("kind = %q", kind)
	}
}

func TestParseHybridSubstitutesEmbeddedImages(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{doclingStub(t, "unused")}
	cfg.Parser.VLM.Servers = []VLMServer{{BaseURL: vlmStub(t, "OCRTEXT", http.StatusOK), Model: "m"}}
	srv := newTestServer(t, cfg)

	md := "# T\n![a](data:image/png;base64,iVBORw0KGgo=)\n"
	resp := postFile(t, srv.URL+"/api/parse/parse", []byte(md), "doc.md")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Markdown, "OCRTEXT") {
		t.Errorf("markdown missing OCR text: %q", result.Markdown)
	}
	if strings.Contains(result.Markdown, "data:image/png;base64") {
		t.Errorf("original image markup survived: %q", result.Markdown)
	}
	if !strings.Contains(result.Markdown, "# T") {
		t.Errorf("surrounding markdown lost: %q", result.Markdown)
	}
}

func TestParseHybridKeepsMarkupOnOCRFailure(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{doclingStub(t, "unused")}
	cfg.Parser.VLM.Servers = []VLMServer{{BaseURL: vlmStub(t, "", http.StatusInternalServerError), Model: "m"}}
	srv := newTestServer(t, cfg)

	md := "![a](data:image/png;base64,iVBORw0KGgo=)"
	resp := postFile(t, srv.URL+"/api/parse/parse", []byte(md), "doc.md")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (per-image failure must not abort the parse)", resp.StatusCode)
	}
	var result ParseResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Markdown != md {
		t.Errorf("markdown = %q, want original markup kept", result.Markdown)
	}
}

func TestParseStructuredOnlyPlaceholders(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{doclingStub(t, "unused")}
	srv := newTestServer(t, cfg)

	md := "before ![chart](data:image/png;base64,iVBORw0KGgo=) ![](data:image/png;base64,iVBORw0KGgo=) after"
	resp := postFile(t, srv.URL+"/api/parse/parse", []byte(md), "doc.md")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ParseResult
	json.NewDecoder(resp.Body).Decode(&result)
	if !strings.Contains(result.Markdown, "<!-- image: chart -->") {
		t.Errorf("missing alt placeholder: %q", result.Markdown)
	}
	if !strings.Contains(result.Markdown, "<!-- image -->") {
		t.Errorf("missing bare placeholder: %q", result.Markdown)
	}
	if strings.Contains(result.Markdown, "base64") {
		t.Errorf("image payload survived: %q", result.Markdown)
	}
}

func TestParseStructuredOnlyPDF(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{doclingStub(t, "# Parsed PDF")}
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/parse/parse", []byte("%PDF-1.4\n"), "doc.pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ParseResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Markdown != "# Parsed PDF" {
		t.Errorf("markdown = %q", result.Markdown)
	}
}

func TestParseVLMOnlyImage(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.VLM.Servers = []VLMServer{{BaseURL: vlmStub(t, "image text", http.StatusOK), Model: "m"}}
	srv := newTestServer(t, cfg)

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	resp := postFile(t, srv.URL+"/api/parse/parse", png, "scan.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ParseResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Markdown != "image text" {
		t.Errorf("markdown = %q", result.Markdown)
	}
}

func TestParseVLMOnlyPDFJoinsPages(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.VLM.Servers = []VLMServer{{BaseURL: vlmStub(t, "PAGE_TEXT", http.StatusOK), Model: "m"}}
	stubConvertTools(t, cfg, 2)
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/parse/parse", []byte("%PDF-1.4\n"), "doc.pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ParseResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Markdown != "PAGE_TEXT"+pageSeparator+"PAGE_TEXT" {
		t.Errorf("markdown = %q", result.Markdown)
	}
}

func TestParseFallbackRejectsImage(t *testing.T) {
	srv := newTestServer(t, &Config{})
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	resp := postFile(t, srv.URL+"/api/parse/parse", png, "scan.png")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
}

func TestParseBackendFailureIs502(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{"http://127.0.0.1:1"}
	srv := newTestServer(t, cfg)

	resp := postFile(t, srv.URL+"/api/parse/parse", []byte("%PDF-1.4\n"), "doc.pdf")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if kind, _ := decodeErrorBody(t, resp); kind != "PARSE_ERROR" {
		t.Errorf("kind = %q", kind)
	}
}

func TestSubstituteIdempotentWithoutImages(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Docling.BaseURLs = []string{doclingStub(t, "unused")}
	cfg.Parser.VLM.Servers = []VLMServer{{BaseURL: "http://127.0.0.1:1", Model: "m"}}
	cfg.defaults()
	svc, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	md := "# Plain\n\nNo images here, just ![a regular link](https://example.com/x.png)."
	if got := svc.substituteEmbeddedImages(t.Context(), md); got != md {
		t.Errorf("markdown changed: %q", got)
	}
	if got := placeholderEmbeddedImages(md); got != md {
		t.Errorf("placeholder pass changed markdown: %q", got)
	}
}
