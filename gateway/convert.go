package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/parsegate/parsegate/fault"
	"github.com/parsegate/parsegate/filetype"
	"github.com/parsegate/parsegate/mdrender"
	"github.com/parsegate/parsegate/raster"
)

const odtMIME = "application/vnd.oasis.opendocument.text"

// pageImageResponse is one NDJSON line of /api/convert/images.
type pageImageResponse struct {
	Page       int    `json:"page"`
	EncodedURI string `json:"encoded_uri"`
	Size       int    `json:"size"`
	TotalPages int    `json:"total_pages"`
}

func (s *Service) handleConvertODT(w http.ResponseWriter, r *http.Request) {
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

	switch info.Category {
	case filetype.CategoryDocument:
		if info.MIME == odtMIME {
			s.writeError(w, r, fmt.Errorf("%w: file is already ODT", fault.ErrBadRequest))
			return
		}
	case filetype.CategoryPlainText:
	case filetype.CategoryMarkdown:
		content, filename, err = s.renderMarkdown(content, info)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	default:
		s.writeError(w, r, fmt.Errorf("%w: cannot convert %s to ODT", fault.ErrUnsupportedMedia, info.MIME))
		return
	}

	out, err := s.office.ToODT(r.Context(), content, filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("converted to odt", "filename", info.OriginalFilename, "bytes", len(out))
	writeAttachment(w, out, odtMIME, info.BaseFilename+".odt")
}

func (s *Service) handleConvertPDF(w http.ResponseWriter, r *http.Request) {
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

	switch info.Category {
	case filetype.CategoryPDF:
		s.writeError(w, r, fmt.Errorf("%w: file is already PDF", fault.ErrBadRequest))
		return
	case filetype.CategoryDocument, filetype.CategorySpreadsheet,
		filetype.CategoryPresentation, filetype.CategoryPlainText:
	case filetype.CategoryMarkdown:
		content, filename, err = s.renderMarkdown(content, info)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	default:
		s.writeError(w, r, fmt.Errorf("%w: cannot convert %s to PDF", fault.ErrUnsupportedMedia, info.MIME))
		return
	}

	out, err := s.office.ToPDF(r.Context(), content, filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("converted to pdf", "filename", info.OriginalFilename, "bytes", len(out))
	writeAttachment(w, out, "application/pdf", info.BaseFilename+".pdf")
}

func (s *Service) handleConvertImages(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.cfg.Convert.ImageFormat
	}
	switch format {
	case "png", "jpg", "jpeg", "webp":
	default:
		s.writeError(w, r, fmt.Errorf("%w: unsupported image format %q", fault.ErrBadRequest, format))
		return
	}
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

	pdf, err := s.toPDF(r.Context(), content, filename, info)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	err = s.rasterizer.Rasterize(r.Context(), pdf, raster.Options{Format: format, DPI: dpi},
		func(img raster.PageImage) error {
			line := pageImageResponse{
				Page:       img.Page,
				EncodedURI: filetype.ToDataURI("image/"+img.Format, img.Content),
				Size:       img.Size(),
				TotalPages: img.TotalPages,
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			s.logger.Debug("page emitted", "page", img.Page, "total", img.TotalPages)
			return nil
		})
	if err != nil {
		// Headers are out; cut the stream instead of injecting error JSON.
		s.logger.Error("image stream aborted", "filename", info.OriginalFilename, "error", err)
		panic(http.ErrAbortHandler)
	}
	s.logger.Info("converted to images", "filename", info.OriginalFilename, "format", format, "dpi", dpi)
}

// toPDF normalizes any rasterizable upload to PDF bytes. PDF passes through;
// markdown is rendered to HTML first; office formats and plain text go
// through the office converter.
func (s *Service) toPDF(ctx context.Context, content []byte, filename string, info *filetype.Info) ([]byte, error) {
	switch info.Category {
	case filetype.CategoryPDF:
		return content, nil
	case filetype.CategoryDocument, filetype.CategorySpreadsheet,
		filetype.CategoryPresentation, filetype.CategoryPlainText:
		return s.office.ToPDF(ctx, content, filename)
	case filetype.CategoryMarkdown:
		html, htmlName, err := s.renderMarkdown(content, info)
		if err != nil {
			return nil, err
		}
		return s.office.ToPDF(ctx, html, htmlName)
	default:
		return nil, fmt.Errorf("%w: cannot rasterize %s", fault.ErrUnsupportedMedia, info.MIME)
	}
}

// renderMarkdown converts a markdown upload to a full HTML page for the
// office converter, renaming the input accordingly.
func (s *Service) renderMarkdown(content []byte, info *filetype.Info) ([]byte, string, error) {
	html, err := mdrender.RenderFullHTML(content, info.BaseFilename)
	if err != nil {
		return nil, "", err
	}
	return html, info.BaseFilename + ".html", nil
}

func writeAttachment(w http.ResponseWriter, body []byte, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}
