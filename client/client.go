// Package client is a small Go SDK for the parsegate HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a structured error response from the gateway.
type APIError struct {
	Status  int    // HTTP status code
	Kind    string // e.g. UNSUPPORTED_MEDIA_TYPE
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parsegate: %s (%d): %s", e.Kind, e.Status, e.Message)
}

// ParseResult is the body of a successful parse call.
type ParseResult struct {
	Filename string `json:"filename"`
	Markdown string `json:"markdown"`
}

// PageImage is one NDJSON line of a convert-to-images stream.
type PageImage struct {
	Page       int    `json:"page"`
	EncodedURI string `json:"encoded_uri"`
	Size       int    `json:"size"`
	TotalPages int    `json:"total_pages"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to one gateway instance. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health checks the gateway liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/convert/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("parsegate health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("parsegate health: status %d", resp.StatusCode)
	}
	return nil
}

// ConvertODT converts a document upload to ODT bytes.
func (c *Client) ConvertODT(ctx context.Context, content []byte, filename string) ([]byte, error) {
	return c.convert(ctx, "/api/convert/odt", content, filename)
}

// ConvertPDF converts a document upload to PDF bytes.
func (c *Client) ConvertPDF(ctx context.Context, content []byte, filename string) ([]byte, error) {
	return c.convert(ctx, "/api/convert/pdf", content, filename)
}

func (c *Client) convert(ctx context.Context, path string, content []byte, filename string) ([]byte, error) {
	resp, err := c.postFile(ctx, path, content, filename)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// ConvertImages streams the rasterized pages of a document, calling fn for
// each page in ascending order. A non-nil error from fn stops the stream.
// Format "" and dpi 0 use the server defaults.
func (c *Client) ConvertImages(ctx context.Context, content []byte, filename, format string, dpi int, fn func(PageImage) error) error {
	path := "/api/convert/images"
	q := url.Values{}
	if format != "" {
		q.Set("format", format)
	}
	if dpi > 0 {
		q.Set("dpi", strconv.Itoa(dpi))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.postFile(ctx, path, content, filename)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 64<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var page PageImage
		if err := json.Unmarshal(line, &page); err != nil {
			return fmt.Errorf("parsegate: malformed page line: %w", err)
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Parse converts a document to markdown using the gateway's active profile.
func (c *Client) Parse(ctx context.Context, content []byte, filename string) (*ParseResult, error) {
	resp, err := c.postFile(ctx, "/api/parse/parse", content, filename)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsegate: decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) postFile(ctx context.Context, path string, content []byte, filename string) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parsegate: %w", err)
	}
	return resp, nil
}

// decodeError turns a non-200 response into an *APIError. Bodies that are
// not the expected JSON shape still produce a usable error.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return &APIError{Status: resp.StatusCode, Kind: "UNKNOWN", Message: strings.TrimSpace(string(data))}
	}
	return &APIError{Status: resp.StatusCode, Kind: body.Error, Message: body.Message}
}
