// Package backend is the client for the ConstructOS REST backend's auth
// endpoints. It resolves the current session from either a bearer token
// or the session cookie and normalizes the backend's response shapes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/token"
	"golang.org/x/net/publicsuffix"
)

const (
	PathMe         = "/api/v1/auth/me/"
	PathLogin      = "/api/v1/auth/login/"
	PathQuickLogin = "/api/v1/auth/quick-login/"
	PathLogout     = "/api/v1/auth/logout/"
	PathDemoUsers  = "/api/v1/auth/demo-users/"

	CSRFCookieName = "csrftoken"
	CSRFHeaderName = "X-CSRFToken"
)

// Observer is told about every backend call.
type Observer func(operation string, elapsed time.Duration, err error)

// Client talks to the backend on behalf of one user. Its cookie jar holds
// that user's server session.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	tokens   token.TokenProvider
	observer Observer
}

type Option func(*Client)

// WithTokenProvider sets where bearer tokens for Do come from.
func WithTokenProvider(tp token.TokenProvider) Option {
	return func(c *Client) {
		c.tokens = tp
	}
}

// WithTransport replaces the HTTP transport; the cookie jar is kept.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[backend NewClient] invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[backend NewClient] base URL %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("[backend NewClient] cookie jar: %w", err)
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{Jar: jar, Timeout: 15 * time.Second},
		tokens:   token.StaticToken(""),
		observer: func(string, time.Duration, error) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Jar holds the user's backend session cookies.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

func (c *Client) Tokens() token.TokenProvider {
	return c.tokens
}

// Cookies returns the cookies the jar would send to the backend.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.baseURL)
}

// ClearCookies drops every backend cookie, ending the server session locally.
func (c *Client) ClearCookies() {
	expired := c.Cookies()
	for _, ck := range expired {
		ck.MaxAge = -1
		ck.Path = "/"
	}
	c.http.Jar.SetCookies(c.baseURL, expired)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		for _, ck := range c.Cookies() {
			if ck.Name == CSRFCookieName {
				req.Header.Set(CSRFHeaderName, ck.Value)
			}
		}
	}
	return req, nil
}

// Do sends an API request with the session cookies and, when available,
// the bearer token from the client's TokenProvider.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if tok, ok := c.tokens.Token(); ok && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return c.http.Do(req)
}

func (c *Client) do(operation string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observer(operation, time.Since(start), err)
		return nil, fmt.Errorf("%w: %s: %v", gwerrors.ErrBackend, operation, err)
	}
	c.observer(operation, time.Since(start), statusError(operation, resp.StatusCode))
	return resp, nil
}

// StatusError is a completed backend call that answered outside 2xx.
type StatusError struct {
	Operation string
	Status    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend status %d", e.Operation, e.Status)
}

func (e *StatusError) Unwrap() error {
	return gwerrors.ErrBackend
}

// statusError is what the observer is told about a completed call. 401 and
// 403 are the backend saying "not signed in"; login also rejects with 400.
func statusError(operation string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil
	case status == http.StatusBadRequest && (operation == "login" || operation == "quick_login"):
		return nil
	}
	return &StatusError{Operation: operation, Status: status}
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
