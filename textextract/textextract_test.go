package textextract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestSupports(t *testing.T) {
	yes := []string{
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
		"text/html", "text/plain", "text/markdown", "text/csv",
	}
	for _, mime := range yes {
		if !Supports(mime) {
			t.Errorf("Supports(%q) = false, want true", mime)
		}
	}
	no := []string{"image/png", "application/vnd.ms-excel", "application/x-hwp"}
	for _, mime := range no {
		if Supports(mime) {
			t.Errorf("Supports(%q) = true, want false", mime)
		}
	}
}

func TestExtractPlainText(t *testing.T) {
	text, err := Extract([]byte("  hello world \n"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Fatalf("got %q", text)
	}
}

func TestExtractMarkdownPassthrough(t *testing.T) {
	md := "# Title\n\nbody text"
	text, err := Extract([]byte(md+"\n"), "text/markdown")
	if err != nil {
		t.Fatal(err)
	}
	if text != md {
		t.Fatalf("got %q", text)
	}
}

func zipWith(t *testing.T, entry, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entry)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(content))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	content := zipWith(t, "word/document.xml", doc)

	text, err := Extract(content, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		t.Fatal(err)
	}
	want := "First paragraph.\nSecond paragraph."
	if text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestExtractODT(t *testing.T) {
	doc := `<?xml version="1.0"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
    xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
  <office:body>
    <office:text>
      <text:h>Heading</text:h>
      <text:p>Body line.</text:p>
    </office:text>
  </office:body>
</office:document-content>`
	content := zipWith(t, "content.xml", doc)

	text, err := Extract(content, "application/vnd.oasis.opendocument.text")
	if err != nil {
		t.Fatal(err)
	}
	want := "Heading\nBody line."
	if text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestExtractZipMissingEntry(t *testing.T) {
	content := zipWith(t, "other.xml", "<x/>")
	if _, err := Extract(content, "application/vnd.oasis.opendocument.text"); err == nil {
		t.Fatal("expected error for archive without content.xml")
	}
}

func TestExtractHTML(t *testing.T) {
	html := `<html><head><script>evil()</script></head>
<body><h1>Heading</h1><p>Some <b>bold</b> text.</p></body></html>`

	text, err := Extract([]byte(html), "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "bold") {
		t.Fatalf("missing content: %q", text)
	}
	if strings.Contains(text, "evil()") {
		t.Fatalf("script content leaked: %q", text)
	}
}

func TestExtractUnknownMIME(t *testing.T) {
	if _, err := Extract([]byte("x"), "application/x-unknown"); err == nil {
		t.Fatal("expected error for unknown mime")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  a   b\t\nc  ", "a b c"},
		{"", ""},
		{"word", "word"},
	}
	for _, tt := range tests {
		if got := normalizeWhitespace(tt.in); got != tt.want {
			t.Errorf("normalizeWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
