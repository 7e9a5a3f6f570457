// Package raster renders PDF pages to images by driving the poppler tools
// (pdfinfo for the page count, pdftoppm for one page at a time).
//
// Pages are produced strictly in ascending order with one page held in memory
// at a time. All scratch files live in a per-call directory that is removed on
// every exit path; context cancellation kills any in-flight subprocess.
package raster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parsegate/parsegate/fault"
)

// PageImage is one rendered page.
type PageImage struct {
	Page       int    // 1-based
	Format     string // "png", "jpeg" or "webp"
	Content    []byte
	TotalPages int
}

// Size returns the image payload size in bytes.
func (p PageImage) Size() int { return len(p.Content) }

// Options control rendering.
type Options struct {
	Format string // "png" (default), "jpg", "jpeg", "webp"
	DPI    int    // default 150
}

// Config configures a Rasterizer.
type Config struct {
	PdfinfoPath  string        // default "pdfinfo"
	PdftoppmPath string        // default "pdftoppm"
	CountTimeout time.Duration // default 30s
	PageTimeout  time.Duration // per page, default 60s
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.PdfinfoPath == "" {
		c.PdfinfoPath = "pdfinfo"
	}
	if c.PdftoppmPath == "" {
		c.PdftoppmPath = "pdftoppm"
	}
	if c.CountTimeout <= 0 {
		c.CountTimeout = 30 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Rasterizer drives the poppler subprocesses.
type Rasterizer struct {
	cfg Config
}

// New creates a Rasterizer.
func New(cfg Config) *Rasterizer {
	cfg.defaults()
	return &Rasterizer{cfg: cfg}
}

// Rasterize renders every page of pdf and calls emit for each, in ascending
// page order. A zero-page PDF emits nothing and returns nil. Errors from emit
// are returned unwrapped so callers can tell client-side failures apart from
// rasterizer ones.
func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte, opts Options, emit func(PageImage) error) error {
	format, ext := normalizeFormat(opts.Format)
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 150
	}

	workDir := filepath.Join(os.TempDir(), "raster-"+uuid.NewString())
	if err := os.Mkdir(workDir, 0o700); err != nil {
		return fmt.Errorf("raster work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			r.cfg.Logger.Warn("raster temp cleanup failed", "dir", workDir, "error", err)
		}
	}()

	inputPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(inputPath, pdf, 0o600); err != nil {
		return fmt.Errorf("raster write input: %w", err)
	}

	totalPages, err := r.pageCount(ctx, inputPath)
	if err != nil {
		return err
	}
	r.cfg.Logger.Info("rasterizing pdf", "pages", totalPages, "format", format, "dpi", dpi)

	for page := 1; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := r.renderPage(ctx, inputPath, workDir, page, format, ext, dpi)
		if err != nil {
			return err
		}
		r.cfg.Logger.Debug("rendered page", "page", page, "total", totalPages, "bytes", len(content))
		if err := emit(PageImage{Page: page, Format: format, Content: content, TotalPages: totalPages}); err != nil {
			return err
		}
	}
	return nil
}

// pageCount runs pdfinfo and parses the "Pages:" line.
func (r *Rasterizer) pageCount(ctx context.Context, pdfPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CountTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.PdfinfoPath, pdfPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: pdfinfo: %v: %s", fault.ErrImageConversion, err, strings.TrimSpace(stderr.String()))
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if convErr != nil {
			break
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: pdfinfo output has no page count", fault.ErrImageConversion)
}

// renderPage extracts one page with pdftoppm -singlefile and deletes the
// produced file after reading it.
func (r *Rasterizer) renderPage(ctx context.Context, pdfPath, workDir string, page int, format, ext string, dpi int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
	defer cancel()

	prefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, r.cfg.PdftoppmPath,
		"-"+format,
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath, prefix)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm page %d: %v: %s", fault.ErrImageConversion, page, err, strings.TrimSpace(string(out)))
	}

	imagePath := prefix + ext
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm page %d produced no image", fault.ErrImageConversion, page)
	}
	if err := os.Remove(imagePath); err != nil {
		r.cfg.Logger.Warn("raster page cleanup failed", "path", imagePath, "error", err)
	}
	return content, nil
}

// normalizeFormat maps "jpg" to the "jpeg" command-line flag while keeping the
// ".jpg" output extension pdftoppm uses for JPEG.
func normalizeFormat(format string) (name, ext string) {
	switch strings.ToLower(format) {
	case "", "png":
		return "png", ".png"
	case "jpg", "jpeg":
		return "jpeg", ".jpg"
	default:
		f := strings.ToLower(format)
		return f, "." + f
	}
}
