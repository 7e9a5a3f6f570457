// Package mdrender converts GitHub Flavored Markdown into a standalone HTML
// document suitable as office-converter input.
package mdrender

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/parsegate/parsegate/fault"
)

// stylesheet is fixed: body typography, bordered tables, code blocks and
// blockquotes render sensibly after office conversion.
const stylesheet = `    body { font-family: sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
    th { background-color: #f2f2f2; }
    code { background-color: #f4f4f4; padding: 2px 4px; border-radius: 3px; }
    pre { background-color: #f4f4f4; padding: 10px; border-radius: 5px; overflow-x: auto; }
    blockquote { border-left: 4px solid #ddd; margin: 0; padding-left: 16px; color: #666; }`

// extension.GFM enables tables, strikethrough, autolinks and task lists.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderFullHTML renders markdown into a complete HTML5 document.
// The title element is omitted when title is empty; otherwise it is escaped.
// Empty input fails with fault.ErrBadRequest.
func RenderFullHTML(markdown []byte, title string) ([]byte, error) {
	if len(bytes.TrimSpace(markdown)) == 0 {
		return nil, fmt.Errorf("%w: empty markdown input", fault.ErrBadRequest)
	}

	var body bytes.Buffer
	if err := md.Convert(markdown, &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n  <meta charset=\"UTF-8\">\n")
	if title != "" {
		fmt.Fprintf(&doc, "  <title>%s</title>\n", html.EscapeString(title))
	}
	doc.WriteString("  <style>\n")
	doc.WriteString(stylesheet)
	doc.WriteString("\n  </style>\n</head>\n<body>\n")
	doc.Write(body.Bytes())
	doc.WriteString("\n</body>\n</html>\n")
	return doc.Bytes(), nil
}
