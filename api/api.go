// Package api is the request gateway to the OA service: one shared HTTP
// client with a fixed base path and timeout, plus one method per remote
// operation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// BasePath is prefixed to every endpoint path.
	BasePath = "/api"
	// DefaultTimeout bounds each request end to end.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent is sent when WithUserAgent is not used.
	DefaultUserAgent = "oaclient"

	maxResponseBytes = 8 << 20
)

// TokenSource supplies the bearer token attached to outgoing requests.
// ok is false when there is no current token.
type TokenSource interface {
	Token() (token string, ok bool)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token() (string, bool) { return string(t), t != "" }

// Client is the shared HTTP client for the OA service.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	timeout    time.Duration
	transport  http.RoundTripper

	mu     sync.RWMutex
	tokens TokenSource
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTokenSource sets the source of the bearer token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger sets the structured logger used for request tracing.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTransport replaces the underlying round tripper. The authorization
// hook is always layered on top of it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithUserAgent sets the User-Agent header value.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient returns a Client talking to the OA service at serverURL.
// BasePath is appended to serverURL's path.
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q: scheme must be http or https", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + BasePath
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		base:      u,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.httpClient = &http.Client{
		Timeout:   c.timeout,
		Transport: &authTransport{next: c.transport, client: c},
	}
	return c, nil
}

// SetTokenSource replaces the token source after construction. It is
// typically called once the session store has been opened on top of this
// client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *Client) token() (string, bool) {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return "", false
	}
	tok, ok := ts.Token()
	return tok, ok && tok != ""
}

// BaseURL returns the resolved base URL, including BasePath.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// endpoint resolves an already-escaped path against the base URL.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + path
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	} else {
		u.Path = u.RawPath
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request and decodes a JSON response into out (when non-nil).
// Transport failures are returned exactly as the http.Client reports them.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(method, path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
