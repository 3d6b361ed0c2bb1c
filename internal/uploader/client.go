// -----------------------------------------------------------------------
// Storage Client - object store REST client for artifact delivery
// -----------------------------------------------------------------------

package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default per-request HTTP timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 20
)

// ErrBucketExists is returned by CreateBucket when the bucket already exists.
// Callers treat it as success: the destination is provisioned either way.
var ErrBucketExists = errors.New("bucket already exists")

// Bucket describes one storage bucket
type Bucket struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// ObjectInfo describes one stored object within a listing
type ObjectInfo struct {
	Name string `json:"name"`
}

// UploadOutcome distinguishes a fresh upload from a server-side duplicate
type UploadOutcome int

const (
	OutcomeUploaded UploadOutcome = iota
	OutcomeAlreadyExists
)

// Client is a Supabase-compatible storage API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the request rate limit in requests per second.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a storage client for the given project URL and API key.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListBuckets lists all buckets in the store
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	body, err := c.do(ctx, http.MethodGet, "/storage/v1/bucket", "", nil)
	if err != nil {
		return nil, err
	}

	var buckets []Bucket
	if err := json.Unmarshal(body, &buckets); err != nil {
		return nil, fmt.Errorf("failed to decode bucket list: %w", err)
	}
	return buckets, nil
}

// CreateBucket creates a new bucket. Returns ErrBucketExists on a conflict.
func (c *Client) CreateBucket(ctx context.Context, name string, public bool) error {
	payload, err := json.Marshal(map[string]interface{}{"name": name, "public": public})
	if err != nil {
		return fmt.Errorf("failed to encode bucket request: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, "/storage/v1/bucket", "application/json", payload)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.IsDuplicate() {
			return ErrBucketExists
		}
		return err
	}
	return nil
}

// ListFolder lists the objects directly under a prefix within a bucket
func (c *Client) ListFolder(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	path := "/storage/v1/object/list/" + url.PathEscape(bucket)
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}

	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, fmt.Errorf("failed to decode object list: %w", err)
	}
	return objects, nil
}

// UploadFile uploads one object. A server-side duplicate rejection is
// reported as OutcomeAlreadyExists, not an error: the content is present.
func (c *Client) UploadFile(ctx context.Context, bucket, remotePath string, data []byte) (UploadOutcome, error) {
	path := "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapeObjectPath(remotePath)

	_, err := c.do(ctx, http.MethodPost, path, "application/octet-stream", data)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.IsDuplicate() {
			return OutcomeAlreadyExists, nil
		}
		return 0, err
	}
	return OutcomeUploaded, nil
}

// do performs one rate-limited request and returns the response body
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Operation:  method + " " + path,
		}
	}

	return respBody, nil
}

// escapeObjectPath escapes each path segment but keeps the separators
func escapeObjectPath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// apiError carries the status and body of a rejected storage API call
type apiError struct {
	StatusCode int
	Body       string
	Operation  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("storage API error: %s returned %d - %s", e.Operation, e.StatusCode, e.Body)
}

// IsDuplicate reports whether the rejection indicates the resource already exists
func (e *apiError) IsDuplicate() bool {
	if e.StatusCode == http.StatusConflict {
		return true
	}
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "duplicate") || strings.Contains(body, "already exists")
}
