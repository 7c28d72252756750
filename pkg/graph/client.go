// Package graph implements the directory API client: raw HTTPS plumbing to a
// versioned Microsoft Graph style REST API, returning parsed JSON or a
// classified error carrying the HTTP status and provider error code.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/provision"
)

const (
	// DefaultBaseURL is the production directory endpoint.
	DefaultBaseURL = "https://graph.microsoft.com"

	versionV1   = "v1.0"
	versionBeta = "beta"

	requestTimeout = 30 * time.Second
)

// Observer is invoked after every request with the method, response status
// (0 on transport failure) and duration. The telemetry metrics collector
// subscribes through this.
type Observer func(method string, status int, duration time.Duration)

// Client is a directory API client. It carries an ambient bearer token
// source and an API-version selector. Version overrides are scoped: Beta()
// derives a new view instead of mutating the shared handle, so a forgotten
// restore cannot corrupt subsequent calls.
type Client struct {
	baseURL    string
	version    string
	tokens     provision.TokenSource
	httpClient *http.Client
	observe    Observer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the directory endpoint (tests point it at a local
// server).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver registers a request observer.
func WithObserver(fn Observer) Option {
	return func(c *Client) { c.observe = fn }
}

// NewClient creates a directory client bound to a token source, pinned to
// the v1.0 API version.
func NewClient(tokens provision.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		version:    versionV1,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Beta returns a view of the same client pinned to the beta API version.
func (c *Client) Beta() provision.Directory {
	derived := *c
	derived.version = versionBeta
	return &derived
}

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.url(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

// Post performs a POST request with a JSON body. When out is non-nil the
// response body is decoded into it.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, c.url(path), body, out)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPatch, c.url(path), body, nil)
}

// Delete performs a DELETE request. A 404 response counts as success: the
// resource is gone either way.
func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.do(ctx, http.MethodDelete, c.url(path), nil, nil)
	if provision.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, strings.TrimLeft(path, "/"))
}

// errorEnvelope is the standard error shape of the directory API.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return provision.NewAuthenticationError("failed to acquire token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.observe != nil {
			c.observe(method, 0, time.Since(start))
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.observe != nil {
		c.observe(method, resp.StatusCode, time.Since(start))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var envelope errorEnvelope
		message := fmt.Sprintf("%s %s returned %s", method, req.URL.Path, resp.Status)
		code := ""
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
			code = envelope.Error.Code
		}
		return provision.FromHTTP(message, resp.StatusCode, code, nil)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
