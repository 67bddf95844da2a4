// Package apiclient talks to the reminder backend. Credentials travel as
// cookies set by the backend; on a 401 the client runs a single shared
// refresh and replays the failed requests once.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultRefreshPath    = "/auth/refresh"
	DefaultTimeout        = 30 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
)

// DefaultAuthEndpoints fail openly: a 401 from them is a real answer, not an
// expired access token.
var DefaultAuthEndpoints = []string{
	"/auth/login",
	"/auth/signup",
	"/auth/refresh",
	"/auth/password-reset",
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session is torn down when a refresh fails
type Session interface {
	Teardown(reason string) bool
}

// Client sends requests to the backend and recovers from expired access
// credentials.
type Client struct {
	baseURL        string
	httpClient     HTTPClient
	logger         zerolog.Logger
	session        Session
	authEndpoints  []string
	refreshPath    string
	refreshTimeout time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []chan error

	refreshCount atomic.Int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the transport. Cookies must be handled by it.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCookieJar uses a default *http.Client carrying jar
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: DefaultTimeout, Jar: jar}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithSession(s Session) Option {
	return func(c *Client) { c.session = s }
}

func WithAuthEndpoints(paths ...string) Option {
	return func(c *Client) { c.authEndpoints = paths }
}

func WithRefreshPath(path string) Option {
	return func(c *Client) { c.refreshPath = path }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing scheme or host", baseURL)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		logger:         zerolog.Nop(),
		authEndpoints:  DefaultAuthEndpoints,
		refreshPath:    DefaultRefreshPath,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	c.logger = c.logger.With().Str("component", "apiclient").Logger()
	return c, nil
}

// IsAuthEndpoint reports whether path belongs to the authentication flow
func (c *Client) IsAuthEndpoint(path string) bool {
	for _, p := range c.authEndpoints {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// RefreshCount returns how many refresh calls this client made
func (c *Client) RefreshCount() int64 {
	return c.refreshCount.Load()
}

// Send performs req. Any outcome other than a recoverable 401 is returned
// untouched; a 401 on a non-auth endpoint triggers (or joins) a refresh and
// the request is replayed once.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.retried || c.IsAuthEndpoint(req.Path) {
		return resp, nil
	}

	req.retried = true
	c.logger.Warn().
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("Received 401 Unauthorized, attempting token refresh...")

	if err := c.awaitRefresh(ctx); err != nil {
		return nil, err
	}

	resp, err = c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retry request failed: %w", err)
	}
	resp.Retried = true

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Error().Str("path", req.Path).Msg("Still received 401 after token refresh, giving up")
	} else {
		c.logger.Debug().Str("path", req.Path).Msg("Request succeeded after token refresh")
	}
	return resp, nil
}

// awaitRefresh either joins the refresh already in flight or runs one and
// releases everyone who queued behind it.
func (c *Client) awaitRefresh(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshing {
		wait := make(chan error, 1)
		c.waiters = append(c.waiters, wait)
		c.mu.Unlock()

		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	var result error
	if err := c.Refresh(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to refresh credentials after 401 error")
		result = &RefreshError{Err: err}
		if c.session != nil {
			c.session.Teardown("refresh failed")
		}
	} else {
		c.logger.Info().Msg("Successfully refreshed credentials, retrying request...")
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, w := range waiters {
		w <- result
	}
	return result
}

// Refresh asks the backend to rotate the access cookie. It runs detached from
// the caller's cancellation since other requests may be waiting on it.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshCount.Add(1)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	resp, err := c.do(ctx, NewRequest(http.MethodPost, c.refreshPath, []byte("{}")))
	if err != nil {
		return fmt.Errorf("failed to make refresh request: %w", err)
	}
	return resp.Err()
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status_code", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Finished request")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}
