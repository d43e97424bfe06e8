// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package sharepoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// Default HTTP timeout for a single request, including $batch submissions
	defaultTimeout = 60 * time.Second

	acceptNoMetadata = "application/json;odata=nometadata"
)

var (
	ErrBadSiteURL = errors.New("site URL is required")
	ErrNoToken    = errors.New("access token is empty")
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// HTTPError is returned when the remote store answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to the list REST API of a single site.
type Client struct {
	siteURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for siteURL (e.g. https://tenant.sharepoint.com/sites/ops).
func NewClient(siteURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if siteURL == "" {
		return nil, ErrBadSiteURL
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid site URL scheme %q", u.Scheme)
	}
	if tokens == nil {
		return nil, ErrNoToken
	}

	c := &Client{
		siteURL: siteURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SiteURL returns the normalized site URL.
func (c *Client) SiteURL() string {
	return c.siteURL
}

func (c *Client) apiURL(path string) string {
	return c.siteURL + "/_api/" + strings.TrimLeft(path, "/")
}

func listPath(listID string) string {
	return fmt.Sprintf("web/lists(guid'%s')", strings.Trim(listID, "{}"))
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}
	if token == "" {
		return ErrNoToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// getJSON issues a GET against path and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(path), nil)
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Accept", acceptNoMetadata)
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("GET completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return newHTTPError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// newHTTPError builds an HTTPError, pulling the message out of an OData error
// body when there is one.
func newHTTPError(status int, body []byte) *HTTPError {
	var odata struct {
		Error struct {
			Message json.RawMessage `json:"message"`
		} `json:"error"`
		ODataError struct {
			Message json.RawMessage `json:"message"`
		} `json:"odata.error"`
	}

	msg := ""
	if json.Unmarshal(body, &odata) == nil {
		raw := odata.Error.Message
		if len(raw) == 0 {
			raw = odata.ODataError.Message
		}
		msg = decodeODataMessage(raw)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
	}
	return &HTTPError{StatusCode: status, Message: msg}
}

// decodeODataMessage accepts both "message": "text" and
// "message": {"lang": "en-US", "value": "text"}.
func decodeODataMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var v struct {
		Value string `json:"value"`
	}
	if json.Unmarshal(raw, &v) == nil {
		return v.Value
	}
	return ""
}
