package orthanc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	contentTypeJSON = "application/json"

	// DefaultChangesLimit is the page size requested from /changes when the
	// caller does not choose one.
	DefaultChangesLimit = 10
)

// Client manages communication with the Orthanc API
type Client struct {
	BaseURL string
	http    *resty.Client
	logger  *slog.Logger
	ready   atomic.Bool
}

// Option customizes a Client.
type Option func(*Client)

// WithBasicAuth sets the credential pair sent with every request.
// An empty username leaves requests unauthenticated.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		if username != "" {
			c.http.SetBasicAuth(username, password)
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new Orthanc API client with a default HTTP client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	return NewClientWithHttpClient(baseURL, &http.Client{Timeout: timeout}, opts...)
}

// NewClientWithHttpClient creates a new Orthanc API client with a specific *http.Client
// This allows passing an instrumented client.
func NewClientWithHttpClient(baseURL string, client *http.Client, opts ...Option) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	r := resty.NewWithClient(client)
	r.SetBaseURL(baseURL)
	r.SetHeader("Accept", contentTypeJSON)

	c := &Client{
		BaseURL: baseURL,
		http:    r,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the absolute locator for path without fetching it.
func (c *Client) URL(path string) string {
	return c.BaseURL + path
}

// Get fetches path and decodes the JSON object it returns.
func (c *Client) Get(ctx context.Context, path string, query map[string]string) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, path, query, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Post sends body encoded as JSON and returns the decoded response. A Go string
// body is sent as a JSON string, which the archive accepts for resource ids.
func (c *Client) Post(ctx context.Context, path string, body any) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode body for %s: %w", path, err)
	}
	resp, err := c.do(ctx, c.http.R().
		SetHeader("Content-Type", contentTypeJSON).
		SetBody(payload), http.MethodPost, path)
	if err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(resp.Body())
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode response from Orthanc", "method", http.MethodPost, "path", path, "error", err)
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return out, nil
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, c.http.R(), http.MethodDelete, path)
	return err
}

// Changes reads one page of the change log starting after sequence number since.
func (c *Client) Changes(ctx context.Context, since int64, limit int) (*ChangePage, error) {
	if limit <= 0 {
		limit = DefaultChangesLimit
	}
	query := map[string]string{
		"since": strconv.FormatInt(since, 10),
		"limit": strconv.Itoa(limit),
	}
	var page ChangePage
	if err := c.getJSON(ctx, "/changes", query, &page); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Retrieved change page from Orthanc",
		"since", since, "count", len(page.Changes), "done", page.Done, "last", page.Last)
	return &page, nil
}

// ResetChanges clears the archive's change log.
func (c *Client) ResetChanges(ctx context.Context) error {
	return c.Delete(ctx, "/changes")
}

// Ready reports whether the archive answers /system. A positive answer is
// remembered for the lifetime of the client.
func (c *Client) Ready(ctx context.Context) bool {
	if c.ready.Load() {
		return true
	}
	var sys map[string]any
	if err := c.getJSON(ctx, "/system", nil, &sys); err != nil {
		return false
	}
	c.ready.Store(true)
	return true
}

// Modalities lists the names of the DICOM modalities configured on the archive.
func (c *Client) Modalities(ctx context.Context) ([]string, error) {
	var modalities []string
	if err := c.getJSON(ctx, "/modalities", nil, &modalities); err != nil {
		return nil, err
	}
	return modalities, nil
}

// ListStudies retrieves a list of study IDs from Orthanc
func (c *Client) ListStudies(ctx context.Context) ([]string, error) {
	var studies []string // Orthanc /studies endpoint returns a JSON array of strings
	if err := c.getJSON(ctx, "/studies", nil, &studies); err != nil {
		return nil, err
	}
	return studies, nil
}

// GetInstancePreview retrieves a rendered preview image (e.g., PNG) for a specific instance.
// Returns image bytes, content type string, and error.
func (c *Client) GetInstancePreview(ctx context.Context, instanceID string) ([]byte, string, error) {
	if instanceID == "" {
		return nil, "", fmt.Errorf("instanceID cannot be empty")
	}
	resp, err := c.do(ctx, c.http.R().SetHeader("Accept", "image/png"),
		http.MethodGet, fmt.Sprintf("/instances/%s/preview", instanceID))
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream" // Default if not specified
	}
	return resp.Body(), contentType, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	req := c.http.R()
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := c.do(ctx, req, http.MethodGet, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode response from Orthanc", "path", path, "error", err)
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// do executes req and converts every non-success outcome into a *TransportError.
func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) (*resty.Response, error) {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		c.logger.ErrorContext(ctx, "Orthanc client failed to execute request", "method", method, "path", path, "error", err)
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	logAttrs := []any{"method", method, "path", path, "statusCode", resp.StatusCode()}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body := resp.Body()
		if len(body) > 1024 {
			body = body[:1024]
		}
		logAttrs = append(logAttrs, "responseBody", string(body))
		if resp.StatusCode() == http.StatusNotFound {
			c.logger.DebugContext(ctx, "Orthanc resource not found", logAttrs...)
		} else {
			c.logger.ErrorContext(ctx, "Orthanc returned non-OK status", logAttrs...)
		}
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode(), Body: string(body)}
	}

	c.logger.DebugContext(ctx, "Orthanc request succeeded", logAttrs...)
	return resp, nil
}
