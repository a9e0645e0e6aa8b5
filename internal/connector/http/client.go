package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Client defaults.
const (
	defaultTimeout   = 60 * time.Second
	defaultRetries   = 3
	defaultRate      = 5.0
	defaultUserAgent = "etl-flows/1.0"
	baseBackoff      = 100 * time.Millisecond
	maxRetryAfter    = 2 * time.Minute
)

// ClientConfig configures a Client. Zero fields take the package defaults.
type ClientConfig struct {
	// BaseURL prefixes relative paths. Absolute URLs, such as next-page
	// links returned by the platform, are requested unchanged.
	BaseURL string
	Auth    Authenticator

	Timeout time.Duration
	// MaxRetries bounds retries of 429 and 5xx responses.
	MaxRetries int
	// RateLimit is requests per second; RateBurst defaults to its ceiling.
	RateLimit float64
	RateBurst int

	Headers   map[string]string
	UserAgent string
	Transport http.RoundTripper
	Logger    logger.Logger
}

// Client sends rate-limited JSON requests, retrying throttled and
// server-side failures with exponential backoff.
type Client struct {
	base      string
	auth      Authenticator
	retries   int
	headers   http.Header
	http      *http.Client
	limiter   *rate.Limiter
	log       logger.Logger
	sleepUnit time.Duration
}

func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultRetries
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = defaultRate
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	headers := http.Header{"User-Agent": {agent}}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		base:      strings.TrimSuffix(cfg.BaseURL, "/"),
		auth:      cfg.Auth,
		retries:   retries,
		headers:   headers,
		http:      &http.Client{Timeout: timeout, Transport: cfg.Transport},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		log:       log,
		sleepUnit: baseBackoff,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// StatusError is returned for any response with a status of 400 or above.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server's requested delay, when it sent one.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Temporary reports whether resending the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Get requests path with query merged into any query it already has.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.send(ctx, http.MethodGet, path, query, nil)
}

// Post sends body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, nil, data)
}

// FetchPage gets one page of a paginated endpoint as a JSON object.
func (c *Client) FetchPage(ctx context.Context, path string, query url.Values) (core.Record, error) {
	var page core.Record
	if err := c.getJSON(ctx, path, query, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// FetchList gets an endpoint whose body is a bare JSON array.
func (c *Client) FetchList(ctx context.Context, path string) ([]any, error) {
	var items []any
	if err := c.getJSON(ctx, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	c.log.Info("fetching", logger.String("url", path))
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := resp.JSON(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	target, err := c.resolve(path, query)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.once(ctx, method, target, body)
		var se *StatusError
		if err == nil || !errors.As(err, &se) || !se.Temporary() {
			return resp, err
		}
		if attempt == c.retries {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}
		wait := c.sleepUnit << attempt
		if se.RetryAfter > 0 {
			wait = min(se.RetryAfter, maxRetryAfter)
		}
		c.log.Warn("request throttled or failed, retrying",
			logger.String("method", method),
			logger.Int("status", se.StatusCode),
			logger.Duration("wait", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) once(ctx context.Context, method, target string, body []byte) (*Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	req.Header = c.headers.Clone()
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.Apply(req); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if res.StatusCode >= 400 {
		return nil, &StatusError{
			StatusCode: res.StatusCode,
			Body:       string(data),
			RetryAfter: retryAfter(res.Header.Get("Retry-After")),
		}
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

// resolve joins relative paths onto the base URL and merges query.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	raw := path
	if !strings.Contains(path, "://") {
		raw = c.base + "/" + strings.TrimPrefix(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// retryAfter parses a Retry-After value given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
