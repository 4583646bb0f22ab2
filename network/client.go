// Package network provides the session's HTTP client: pooled connections, a
// shared cookie jar, bounded retries, and schema-validated requests.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/validate"
	"golang.org/x/net/publicsuffix"
)

// Config holds the construction parameters of a Client. Zero values fall back
// to the package defaults.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retries        int
	Backoff        time.Duration
	Proxy          string
	UserAgent      string
	Headers        map[string]string
	// Cookies are attached to every request, regardless of host.
	Cookies        map[string]string
	TLSImpersonate bool
}

// Defaults per the session option schema.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultRetries        = 3
	DefaultBackoff        = time.Second
)

// Client is a cookie-carrying HTTP client shared by every plugin and stream
// of one session. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	jar       http.CookieJar
	userAgent string
	headers   map[string]string
	cookies   map[string]string
	retries   int
	backoff   time.Duration
}

// New constructs a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		http: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
		jar:       jar,
		userAgent: cfg.UserAgent,
		headers:   cfg.Headers,
		cookies:   cfg.Cookies,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
	}, nil
}

// Jar exposes the session cookie jar.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// SetCookie stores a single cookie for the given URL.
func (c *Client) SetCookie(rawURL, name, value string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	c.jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value}})
	return nil
}

// Options are the per-request settings of a single HTTP call.
type Options struct {
	// Headers are merged over the client defaults.
	Headers map[string]string
	// Params are encoded into the request query string.
	Params map[string]string
	// Body is the request body, if any.
	Body io.Reader
	// Schema, when set, validates the response body; the validated value is
	// returned in Response.Value.
	Schema validate.Schema
	// RaiseForStatus turns 4xx/5xx statuses into errors.
	RaiseForStatus bool
}

// Response is the buffered result of a schema-capable HTTP call.
type Response struct {
	StatusCode int
	Header     http.Header
	URL        string
	Body       []byte
	// Value holds the schema-validated value when Options.Schema was set.
	Value any
}

// Text returns the response body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	return c.request(ctx, http.MethodGet, rawURL, opts)
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	return c.request(ctx, http.MethodPost, rawURL, opts)
}

func (c *Client) request(ctx context.Context, method, rawURL string, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}

	resp, err := c.do(ctx, method, rawURL, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		URL:        resp.Request.URL.String(),
		Body:       body,
	}

	if opts.RaiseForStatus && resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	if opts.Schema != nil {
		value, err := validate.Apply(opts.Schema, body)
		if err != nil {
			return nil, err
		}
		out.Value = value
	}

	return out, nil
}

// Stream performs a request and returns the live response without buffering
// the body. The caller owns the body and must close it. Retries apply to
// establishing the response only; a body aborted mid-read is not retried.
func (c *Client) Stream(ctx context.Context, method, rawURL string, opts *Options) (*http.Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	resp, err := c.do(ctx, method, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if opts.RaiseForStatus && resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

// do issues the request with bounded retries on transient errors.
// Cancellation is honored between attempts and never retried.
func (c *Client) do(ctx context.Context, method, rawURL string, opts *Options) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			log.Debugf("retrying %s %s in %s (attempt %d/%d)", method, rawURL, delay, attempt, c.retries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := c.newRequest(ctx, method, rawURL, opts)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err == nil {
			log.Debugf("%s %s -> %d", method, rawURL, resp.StatusCode)
			return resp, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retries+1, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, opts *Options) (*http.Request, error) {
	target := rawURL
	if len(opts.Params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, v := range opts.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, opts.Body)
	if err != nil {
		return nil, err
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	return req, nil
}

// ProxyFromConfig resolves the proxy function for a transport: an explicit
// proxy URL wins, otherwise HTTP(S)_PROXY environment variables apply.
func proxyFromConfig(proxy string) (func(*http.Request) (*url.URL, error), error) {
	if strings.TrimSpace(proxy) == "" {
		return http.ProxyFromEnvironment, nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", proxy, err)
	}
	return http.ProxyURL(u), nil
}
