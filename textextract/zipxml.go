package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// extractZipXML reads one XML entry out of a ZIP container (DOCX and ODT both
// store their body this way) and returns paragraph text, one line each.
//
// For DOCX the entry is word/document.xml and paragraphs are <w:p>; for ODT
// it is content.xml with <text:p> and <text:h>. Both reduce to the same walk:
// collect character data inside paragraph-like elements.
func extractZipXML(content []byte, entryName string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}

	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == entryName {
			entry = f
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("%s not found in archive", entryName)
	}

	rc, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", entryName, err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var paragraphs []string
	var current strings.Builder
	depth := 0 // nesting depth of paragraph elements

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" || t.Name.Local == "h" {
				if depth == 0 {
					current.Reset()
				}
				depth++
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "h" {
				depth--
				if depth == 0 {
					if text := normalizeWhitespace(current.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
				}
			}
		}
	}

	if len(paragraphs) == 0 {
		return "", fmt.Errorf("no text content in %s", entryName)
	}
	return strings.Join(paragraphs, "\n"), nil
}
