// Package backend is the HTTP client for the PDF form service: upload a
// document, list its form fields, fill and flatten a field, and download
// the result.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// UploadField is the multipart field the backend reads the document from.
	UploadField = "pdf"

	// maxMessageSize bounds how much of a JSON or error body is read.
	maxMessageSize = 1 << 20
)

// Client talks to the backend at a single base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// endpoint joins the base URL with a fixed route and an optional escaped id.
func (c *Client) endpoint(route, id string) string {
	u := c.baseURL.String() + route
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

// DownloadURL is the address a browser can open to fetch document id.
func (c *Client) DownloadURL(id string) string {
	return c.endpoint("/download", id)
}

// Upload sends one document as multipart field "pdf". The backend stores it
// under the filename it was given; when it answers with JSON naming a
// different identifier, that identifier wins.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(UploadField, filename)
	if err != nil {
		return nil, fmt.Errorf("upload: building form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("upload: reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: building form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload", ""), &buf)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("upload: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Op: "upload", StatusCode: resp.StatusCode, Body: string(body)}
	}

	result := &UploadResult{ID: filename, Message: strings.TrimSpace(string(body))}
	if id := assignedID(body); id != "" {
		result.ID = id
		result.Assigned = true
	}
	c.logger.WithFields(logrus.Fields{"file": filename, "id": result.ID}).Debug("Uploaded document")
	return result, nil
}

// assignedID extracts an explicit identifier from a JSON upload response.
func assignedID(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"id", "fileName", "filename"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// ListFields returns the form fields of document id.
func (c *Client) ListFields(ctx context.Context, id string) ([]FormField, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/fields", id), nil)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}

	var fields []FormField
	if err := c.doJSON(req, "list fields", &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []FormField{}
	}
	return fields, nil
}

// Fill fills and flattens document id.
func (c *Client) Fill(ctx context.Context, id string, fill FillRequest) (*FillResult, error) {
	payload, err := json.Marshal(fill)
	if err != nil {
		return nil, fmt.Errorf("fill: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/fill", id), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("fill: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result FillResult
	if err := c.doJSON(req, "fill", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Download opens document id for reading.
func (c *Client) Download(ctx context.Context, id string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/download", id), nil)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := readBody(resp)
		return nil, &APIError{Op: "download", StatusCode: resp.StatusCode, Body: string(body)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &Download{ReadCloser: resp.Body, ContentType: contentType, Size: resp.ContentLength}, nil
}

// do waits for the rate limiter and sends req.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	entry := c.logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"url":      req.URL.String(),
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Debug("Backend request failed")
		return nil, err
	}
	entry.WithField("status", resp.StatusCode).Debug("Backend request completed")
	return resp, nil
}

// doJSON sends req and decodes a 200 JSON response into out.
func (c *Client) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
}
