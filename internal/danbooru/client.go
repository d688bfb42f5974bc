// Package danbooru queries the Danbooru tag implication API.
package danbooru

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

const (
	// DefaultBaseURL is the public Danbooru instance.
	DefaultBaseURL = "https://danbooru.donmai.us"

	// DefaultTimeout bounds a single implication lookup.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies tagsync to the API.
	DefaultUserAgent = "tagsync/1.0 (TagStudio importer)"

	implicationsPath = "/tag_implications.json"
	maxResponseSize  = 10 * 1024 * 1024
)

// Client fetches tag implications. It never retries; a failed lookup is
// returned to the caller as a TransportError.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// NewClient creates a client for the public Danbooru instance.
func NewClient() *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    c.BaseURL,
		UserAgent:  c.UserAgent,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (mirrors or tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		UserAgent:  c.UserAgent,
		HTTPClient: c.HTTPClient,
	}
}

// WithUserAgent returns a new client sending a custom User-Agent header.
func (c *Client) WithUserAgent(userAgent string) *Client {
	return &Client{
		BaseURL:    c.BaseURL,
		UserAgent:  userAgent,
		HTTPClient: c.HTTPClient,
	}
}

// buildURL constructs the implication search URL for a tag.
func (c *Client) buildURL(tagName string) string {
	values := url.Values{}
	values.Set("search[name_matches]", tagName)
	return c.BaseURL + implicationsPath + "?" + values.Encode()
}

// FetchImplications returns every implication Danbooru lists for tagName,
// whatever its status. Records where tagName is neither side can appear when
// the name contains wildcard characters; callers match names themselves.
func (c *Client) FetchImplications(ctx context.Context, tagName string) ([]schema.ImplicationRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(tagName), nil)
	if err != nil {
		return nil, &TransportError{Tag: tagName, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Tag: tagName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Tag: tagName, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Tag: tagName, StatusCode: resp.StatusCode, Err: fmt.Errorf("API error: %s", truncate(body, 200))}
	}

	var records []schema.ImplicationRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &TransportError{Tag: tagName, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return records, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
