// Package backend talks to the embed-server HTTP API.
//
// Each method issues exactly one request and returns either a decoded payload,
// an *UnavailableError (transport failure, timeout, non-2xx status) or a
// *ContractError (the body did not have the expected shape). Responses are
// treated as untrusted input and validated field by field.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 64 << 20
	// maxMessageLength caps backend error text carried into results.
	maxMessageLength = 500
)

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string        // sent as a bearer token when non-empty
	Timeout    time.Duration // per-request timeout; 0 means no client-side limit
	HTTPClient *http.Client  // optional, mainly for tests
}

// Client is a stateless embed-server client, safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. The base URL must be absolute.
func NewClient(options ClientOptions) (*Client, error) {
	parsed, err := url.Parse(options.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend URL %q: %w", options.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q must use http or https", options.BaseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("backend URL %q has no host", options.BaseURL)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Search runs a semantic search. An empty project searches across all projects.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	path := "/search"
	if req.Project != "" {
		path = "/projects/" + url.PathEscape(req.Project) + "/search"
	}
	body, err := c.do(ctx, "search", http.MethodPost, path, nil, req)
	if err != nil {
		return nil, err
	}
	return decodeMatches("search", body)
}

// IndexFiles uploads files for a project. With appendMode false the backend
// replaces the project's existing index.
func (c *Client) IndexFiles(ctx context.Context, project string, files []File, appendMode bool) (*IndexResponse, error) {
	query := url.Values{"append": []string{strconv.FormatBool(appendMode)}}
	payload := struct {
		Files []File `json:"files"`
	}{Files: files}

	body, err := c.do(ctx, "index", http.MethodPut, "/projects/"+url.PathEscape(project)+"/index-files", query, payload)
	if err != nil {
		return nil, err
	}
	return decodeIndexResponse("index", body)
}

// ListProjects returns project identifiers in backend order.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	body, err := c.do(ctx, "list projects", http.MethodGet, "/projects", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeProjects("list projects", body)
}

// ProjectInfo returns the backend's metadata record for a project, verbatim.
func (c *Client) ProjectInfo(ctx context.Context, project string) (json.RawMessage, error) {
	body, err := c.do(ctx, "project info", http.MethodGet, "/projects/"+url.PathEscape(project), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject("project info", body)
}

// CacheStats returns the backend's cache statistics, verbatim.
func (c *Client) CacheStats(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, "cache stats", http.MethodGet, "/cache/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject("cache stats", body)
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UnavailableError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UnavailableError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts a readable message from an error body. JSON bodies of
// the form {"detail": ...}, {"error": ...} or {"message": ...} are unwrapped.
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(trimmed, &fields) == nil {
		for _, key := range []string{"detail", "error", "message"} {
			if raw, ok := fields[key]; ok {
				var text string
				if json.Unmarshal(raw, &text) == nil && text != "" {
					return truncate(text)
				}
				return truncate(string(raw))
			}
		}
	}
	return truncate(string(trimmed))
}

// truncate cuts s to maxMessageLength runes.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxMessageLength]) + "..."
}
