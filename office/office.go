// Package office converts office documents to ODT or PDF through a headless
// LibreOffice subprocess.
//
// Each call runs in its own temp directory with an isolated user profile, so
// concurrent conversions never share LibreOffice state.
package office

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/parsegate/parsegate/fault"
)

// Converter drives the soffice binary. Zero value is not usable; use New.
type Converter struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// Config configures the office converter.
type Config struct {
	// SofficePath is the LibreOffice binary (default: "soffice").
	SofficePath string
	// Timeout bounds one conversion (default: 2 minutes).
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.SofficePath == "" {
		c.SofficePath = "soffice"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates a Converter.
func New(cfg Config) *Converter {
	cfg.defaults()
	return &Converter{bin: cfg.SofficePath, timeout: cfg.Timeout, logger: cfg.Logger}
}

// ToODT converts content to OpenDocument Text.
// The filename's extension selects the import filter.
func (c *Converter) ToODT(ctx context.Context, content []byte, filename string) ([]byte, error) {
	return c.convert(ctx, content, filename, "odt")
}

// ToPDF converts content to PDF.
func (c *Converter) ToPDF(ctx context.Context, content []byte, filename string) ([]byte, error) {
	return c.convert(ctx, content, filename, "pdf")
}

func (c *Converter) convert(ctx context.Context, content []byte, filename, target string) ([]byte, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty input", fault.ErrBadRequest)
	}

	dir, err := os.MkdirTemp("", "office-*")
	if err != nil {
		return nil, fmt.Errorf("office temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.logger.Warn("office temp cleanup failed", "dir", dir, "error", rmErr)
		}
	}()

	inputName := "input" + inputExtension(filename)
	inputPath := filepath.Join(dir, inputName)
	if err := os.WriteFile(inputPath, content, 0o600); err != nil {
		return nil, fmt.Errorf("office write input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Isolated profile: concurrent soffice instances deadlock on a shared one.
	profile := "-env:UserInstallation=file://" + filepath.Join(dir, "profile")
	cmd := exec.CommandContext(ctx, c.bin,
		"--headless", "--norestore", profile,
		"--convert-to", target, "--outdir", dir, inputPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: soffice: %v", fault.ErrConversion, ctx.Err())
		}
		return nil, fmt.Errorf("%w: soffice: %v: %s", fault.ErrConversion, err, strings.TrimSpace(string(out)))
	}

	outputPath := filepath.Join(dir, strings.TrimSuffix(inputName, filepath.Ext(inputName))+"."+target)
	result, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: soffice produced no %s output: %s", fault.ErrConversion, target, strings.TrimSpace(string(out)))
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: soffice produced empty %s output", fault.ErrConversion, target)
	}

	c.logger.Debug("office conversion done", "target", target, "in_bytes", len(content), "out_bytes", len(result))
	return result, nil
}

// inputExtension returns a safe extension for the scratch input file.
func inputExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	for _, r := range ext {
		if r != '.' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
