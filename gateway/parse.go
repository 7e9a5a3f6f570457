package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/parsegate/parsegate/docling"
	"github.com/parsegate/parsegate/fault"
	"github.com/parsegate/parsegate/filetype"
	"github.com/parsegate/parsegate/raster"
	"github.com/parsegate/parsegate/textextract"
)

// pageSeparator joins per-page OCR output in multi-page VLM parses.
const pageSeparator = "\n\n---\n\n"

// ParseResult is the response body of /api/parse/parse.
type ParseResult struct {
	Filename string `json:"filename"`
	Markdown string `json:"markdown"`
}

func (s *Service) handleParse(w http.ResponseWriter, r *http.Request) {
	dpi := s.cfg.Convert.DPI
	if v := r.URL.Query().Get("dpi"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: invalid dpi %q", fault.ErrBadRequest, v))
			return
		}
		dpi = n
	}

	content, filename, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := filetype.Detect(content, filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var markdown string
	switch s.profile {
	case ProfileHybrid:
		markdown, err = s.parseHybrid(r.Context(), content, info)
	case ProfileStructuredOnly:
		markdown, err = s.parseStructured(r.Context(), content, info)
	case ProfileVLMOnly:
		markdown, err = s.parseVLM(r.Context(), content, info, dpi)
	case ProfileFallbackText:
		markdown, err = s.parseFallback(r.Context(), content, info)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("parsed document",
		"filename", info.OriginalFilename,
		"category", string(info.Category),
		"profile", string(s.profile),
		"markdown_bytes", len(markdown))
	writeJSON(w, http.StatusOK, ParseResult{Filename: info.OriginalFilename, Markdown: markdown})
}

// parseHybrid: structured parser for layout, VLM for image content.
func (s *Service) parseHybrid(ctx context.Context, content []byte, info *filetype.Info) (string, error) {
	switch info.Category {
	case filetype.CategoryPlainText:
		return "", unsupported(info)
	case filetype.CategoryMarkdown:
		return s.substituteEmbeddedImages(ctx, string(content)), nil
	case filetype.CategoryImage:
		return s.vlm.OCR(ctx, filetype.ToDataURI(info.MIME, content), "")
	case filetype.CategoryPDF:
		md, err := s.docling.Parse(ctx, content, info.OriginalFilename, docling.ModeEmbedded)
		if err != nil {
			return "", err
		}
		return s.substituteEmbeddedImages(ctx, md), nil
	case filetype.CategoryDocument, filetype.CategorySpreadsheet, filetype.CategoryPresentation:
		md, err := s.parseOfficeStructured(ctx, content, info, docling.ModeEmbedded)
		if err != nil {
			return "", err
		}
		return s.substituteEmbeddedImages(ctx, md), nil
	default:
		return "", unsupported(info)
	}
}

// parseStructured: structured parser alone, placeholders instead of OCR.
func (s *Service) parseStructured(ctx context.Context, content []byte, info *filetype.Info) (string, error) {
	switch info.Category {
	case filetype.CategoryPlainText:
		return "", unsupported(info)
	case filetype.CategoryMarkdown:
		return placeholderEmbeddedImages(string(content)), nil
	case filetype.CategoryImage:
		if !docling.Supported(info.MIME) {
			return "", unsupported(info)
		}
		return s.docling.Parse(ctx, content, info.OriginalFilename, docling.ModeEmbedded)
	case filetype.CategoryPDF:
		return s.docling.Parse(ctx, content, info.OriginalFilename, docling.ModePlaceholder)
	case filetype.CategoryDocument, filetype.CategorySpreadsheet, filetype.CategoryPresentation:
		return s.parseOfficeStructured(ctx, content, info, docling.ModePlaceholder)
	default:
		return "", unsupported(info)
	}
}

// parseVLM: everything rasterizes to pages and goes through OCR.
func (s *Service) parseVLM(ctx context.Context, content []byte, info *filetype.Info, dpi int) (string, error) {
	switch info.Category {
	case filetype.CategoryPlainText:
		return "", unsupported(info)
	case filetype.CategoryImage:
		return s.vlm.OCR(ctx, filetype.ToDataURI(info.MIME, content), "")
	case filetype.CategoryPDF, filetype.CategoryMarkdown,
		filetype.CategoryDocument, filetype.CategorySpreadsheet, filetype.CategoryPresentation:
		pdf, err := s.toPDF(ctx, content, info.OriginalFilename, info)
		if err != nil {
			return "", err
		}
		return s.ocrPages(ctx, pdf, dpi)
	default:
		return "", unsupported(info)
	}
}

// parseFallback: local text extraction, no back-end calls.
func (s *Service) parseFallback(ctx context.Context, content []byte, info *filetype.Info) (string, error) {
	switch info.Category {
	case filetype.CategoryPlainText, filetype.CategoryMarkdown:
		return strings.TrimSpace(string(content)), nil
	case filetype.CategoryImage:
		return "", unsupported(info)
	case filetype.CategoryPDF:
		text, err := textextract.Extract(content, info.MIME)
		if err != nil {
			return "", fmt.Errorf("%w: %v", fault.ErrParse, err)
		}
		return text, nil
	case filetype.CategoryDocument, filetype.CategorySpreadsheet, filetype.CategoryPresentation:
		if textextract.Supports(info.MIME) {
			text, err := textextract.Extract(content, info.MIME)
			if err != nil {
				return "", fmt.Errorf("%w: %v", fault.ErrParse, err)
			}
			return text, nil
		}
		// Formats with no direct extractor go through PDF first.
		pdf, err := s.office.ToPDF(ctx, content, info.OriginalFilename)
		if err != nil {
			return "", err
		}
		text, err := textextract.Extract(pdf, "application/pdf")
		if err != nil {
			return "", fmt.Errorf("%w: %v", fault.ErrParse, err)
		}
		return text, nil
	default:
		return "", unsupported(info)
	}
}

// parseOfficeStructured sends a document to the structured parser, converting
// to PDF first when the parser does not take the format natively.
func (s *Service) parseOfficeStructured(ctx context.Context, content []byte, info *filetype.Info, mode docling.ImageMode) (string, error) {
	if docling.Supported(info.MIME) {
		return s.docling.Parse(ctx, content, info.OriginalFilename, mode)
	}
	pdf, err := s.office.ToPDF(ctx, content, info.OriginalFilename)
	if err != nil {
		return "", err
	}
	return s.docling.Parse(ctx, pdf, info.BaseFilename+".pdf", mode)
}

// ocrPages rasterizes a PDF and OCRs each page, joining the page texts.
func (s *Service) ocrPages(ctx context.Context, pdf []byte, dpi int) (string, error) {
	format := s.cfg.Parser.VLM.ImageFormat
	var pages []string
	err := s.rasterizer.Rasterize(ctx, pdf, raster.Options{Format: format, DPI: dpi},
		func(img raster.PageImage) error {
			text, err := s.vlm.OCR(ctx, filetype.ToDataURI("image/"+img.Format, img.Content), "")
			if err != nil {
				return err
			}
			s.logger.Debug("page ocr done", "page", img.Page, "total", img.TotalPages)
			pages = append(pages, text)
			return nil
		})
	if err != nil {
		return "", err
	}
	return strings.Join(pages, pageSeparator), nil
}

func unsupported(info *filetype.Info) error {
	return fmt.Errorf("%w: no parse pipeline for %s (%s)",
		fault.ErrUnsupportedMedia, string(info.Category), info.MIME)
}
