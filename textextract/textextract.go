// Package textextract pulls plain text out of document bytes without any
// external back-end. It is the last-resort parser when neither a structured
// parser nor a VLM pool is configured.
//
// Supported inputs: PDF (content-stream decoding), DOCX (word/document.xml),
// ODT (content.xml), HTML/XHTML (sanitized and converted to markdown), plain
// text, markdown and CSV (passthrough). Other office formats are expected to
// be converted to PDF upstream.
package textextract

import (
	"fmt"
	"strings"
	"unicode"
)

// Supports reports whether Extract can handle mime directly.
func Supports(mime string) bool {
	switch mime {
	case "application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
		"text/html", "application/xhtml+xml",
		"text/plain", "text/markdown", "text/x-markdown", "text/csv":
		return true
	}
	return false
}

// Extract returns the text content of a document, trimmed.
func Extract(content []byte, mime string) (string, error) {
	switch mime {
	case "application/pdf":
		return extractPDF(content)
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractZipXML(content, "word/document.xml")
	case "application/vnd.oasis.opendocument.text":
		return extractZipXML(content, "content.xml")
	case "text/html", "application/xhtml+xml":
		return extractHTML(content)
	case "text/plain", "text/markdown", "text/x-markdown", "text/csv":
		return strings.TrimSpace(string(content)), nil
	default:
		return "", fmt.Errorf("textextract: no extractor for %s", mime)
	}
}

// normalizeWhitespace collapses whitespace runs to single spaces.
func normalizeWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
