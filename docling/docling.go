// Package docling is the client for the structured document parser pool.
//
// Requests round-robin across the configured base URLs; the counter is shared
// by all concurrent requests, so over K requests each of the P endpoints sees
// either floor(K/P) or ceil(K/P) of them.
package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/parsegate/parsegate/fault"
)

// ImageMode selects how the parser returns document images.
type ImageMode string

const (
	// ModeEmbedded inlines each image as a base64 data URI.
	ModeEmbedded ImageMode = "embedded"
	// ModePlaceholder replaces images with textual placeholders.
	ModePlaceholder ImageMode = "placeholder"
	// ModeReferenced returns image references.
	ModeReferenced ImageMode = "referenced"
)

// EmbeddedImageRe matches markdown images inlined as base64 data URIs:
// ![alt](data:image/xxx;base64,...). Groups: 1=alt, 2=mime, 3=payload.
var EmbeddedImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(data:(image/[^;]+);base64,([^)]+)\)`)

// supportedTypes are the formats the parser ingests directly; anything else
// must be converted to PDF upstream.
var supportedTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/markdown":         true,
	"text/x-markdown":       true,
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/csv":              true,
	"image/png":             true,
	"image/jpeg":            true,
	"image/tiff":            true,
	"image/bmp":             true,
	"image/webp":            true,
}

// Supported reports whether the parser accepts mime directly.
func Supported(mime string) bool { return supportedTypes[mime] }

// Config configures a Pool.
type Config struct {
	BaseURLs      []string
	Timeout       time.Duration // per request, default 5 minutes
	MaxBufferSize int64         // response size cap, default 16 MiB
	Logger        *slog.Logger
}

// Pool is a round-robin client over the parser endpoints.
// Immutable after New; safe for concurrent use.
type Pool struct {
	endpoints []string
	counter   atomic.Uint64
	client    *http.Client
	timeout   time.Duration
	maxBuffer int64
	logger    *slog.Logger
}

// New creates a Pool. At least one base URL is required.
func New(cfg Config) (*Pool, error) {
	if len(cfg.BaseURLs) == 0 {
		return nil, fmt.Errorf("docling: no base URLs configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = 16 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		endpoints: cfg.BaseURLs,
		client:    &http.Client{},
		timeout:   cfg.Timeout,
		maxBuffer: cfg.MaxBufferSize,
		logger:    cfg.Logger,
	}, nil
}

// Size returns the number of configured endpoints.
func (p *Pool) Size() int { return len(p.endpoints) }

func (p *Pool) next() string {
	idx := p.counter.Add(1) - 1
	return p.endpoints[idx%uint64(len(p.endpoints))]
}

// Parse posts content to /v1/convert/file and returns the markdown rendition.
// All back-end failures surface as fault.ErrParse.
func (p *Pool) Parse(ctx context.Context, content []byte, filename string, mode ImageMode) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", fault.ErrBadRequest)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("docling multipart: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("docling multipart: %w", err)
	}
	if err := mw.WriteField("image_export_mode", string(mode)); err != nil {
		return "", fmt.Errorf("docling multipart: %w", err)
	}
	if err := mw.WriteField("to_formats", "md"); err != nil {
		return "", fmt.Errorf("docling multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("docling multipart: %w", err)
	}

	base := p.next()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/convert/file", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrParse, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	p.logger.Debug("docling request", "endpoint", base, "filename", filename, "mode", mode, "bytes", len(content))
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrParse, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBuffer))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", fault.ErrParse, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: endpoint %s returned %d", fault.ErrParse, base, resp.StatusCode)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty response body", fault.ErrParse)
	}

	var decoded struct {
		Document struct {
			Filename  string  `json:"filename"`
			MdContent *string `json:"md_content"`
		} `json:"document"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", fault.ErrParse, err)
	}
	if decoded.Document.MdContent == nil {
		return "", fmt.Errorf("%w: response missing md_content", fault.ErrParse)
	}
	return *decoded.Document.MdContent, nil
}

// Health probes the next endpoint's /health route.
func (p *Pool) Health(ctx context.Context) error {
	base := p.next()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("docling health: endpoint %s returned %d", base, resp.StatusCode)
	}
	return nil
}
