package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/parsegate/parsegate/docling"
)

// altPromptTemplate builds the OCR prompt when the image markup carries alt
// text.
const altPromptTemplate = `This is an embedded image with alt text: "%s". Extract and describe all text, diagrams, charts, or visual content. Format the output as markdown.`

// substituteEmbeddedImages replaces every base64 image in the markdown with
// the VLM's description of it. Per-image failures keep the original markup
// and never abort the whole document. Splicing is literal, so OCR output
// containing $ or \ passes through untouched.
func (s *Service) substituteEmbeddedImages(ctx context.Context, markdown string) string {
	matches := docling.EmbeddedImageRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) == 0 {
		return markdown
	}

	var sb strings.Builder
	sb.Grow(len(markdown))
	last := 0
	failures := 0

	for _, m := range matches {
		full := markdown[m[0]:m[1]]
		alt := markdown[m[2]:m[3]]
		mime := markdown[m[4]:m[5]]
		b64 := markdown[m[6]:m[7]]

		sb.WriteString(markdown[last:m[0]])
		last = m[1]

		if _, err := base64.StdEncoding.DecodeString(b64); err != nil {
			s.logger.Warn("embedded image has invalid base64, keeping markup", "error", err)
			failures++
			sb.WriteString(full)
			continue
		}

		prompt := s.vlm.EmbeddedImagePrompt()
		if strings.TrimSpace(alt) != "" {
			prompt = fmt.Sprintf(altPromptTemplate, alt)
		}

		text, err := s.vlm.OCR(ctx, "data:"+mime+";base64,"+b64, prompt)
		if err != nil {
			s.logger.Warn("embedded image ocr failed, keeping markup", "error", err)
			failures++
			sb.WriteString(full)
			continue
		}
		sb.WriteString(text)
	}
	sb.WriteString(markdown[last:])

	if failures > 0 {
		s.logger.Warn("embedded image substitution incomplete",
			"total", len(matches), "failed", failures)
	}
	return sb.String()
}

// placeholderEmbeddedImages replaces base64 images with HTML comment
// placeholders, preserving alt text when present.
func placeholderEmbeddedImages(markdown string) string {
	matches := docling.EmbeddedImageRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) == 0 {
		return markdown
	}

	var sb strings.Builder
	sb.Grow(len(markdown))
	last := 0
	for _, m := range matches {
		sb.WriteString(markdown[last:m[0]])
		last = m[1]
		if alt := strings.TrimSpace(markdown[m[2]:m[3]]); alt != "" {
			sb.WriteString("<!-- image: " + alt + " -->")
		} else {
			sb.WriteString("<!-- image -->")
		}
	}
	sb.WriteString(markdown[last:])
	return sb.String()
}
