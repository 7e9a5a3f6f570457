package textextract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var htmlPolicy = bluemonday.UGCPolicy()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// extractHTML sanitizes the document and converts it to markdown. If the
// conversion yields nothing (e.g. pure script pages), it falls back to the
// concatenated text nodes.
func extractHTML(content []byte) (string, error) {
	clean := htmlPolicy.SanitizeBytes(content)

	md, err := mdConverter.ConvertString(string(clean))
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md), nil
	}

	doc, parseErr := html.Parse(bytes.NewReader(content))
	if parseErr != nil {
		return "", fmt.Errorf("parse html: %w", parseErr)
	}
	text := normalizeWhitespace(collectText(doc))
	if text == "" {
		return "", fmt.Errorf("no text content in html")
	}
	return text, nil
}

func collectText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(collectText(c))
		sb.WriteByte(' ')
	}
	return sb.String()
}
