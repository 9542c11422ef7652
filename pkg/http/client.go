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
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	applogger "QuantLens/pkg/logger"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client is a small JSON client for internal services. It retries
// transport failures and retryable statuses, and accepts zstd or gzip
// encoded responses.
type Client struct {
	hc       *http.Client
	baseURL  string
	header   http.Header
	attempts int
	backoff  time.Duration
	l        *applogger.Logger
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.hc.Timeout = d }
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRetry allows up to attempts calls, waiting attempt*backoff between them.
func WithRetry(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.header.Set(key, value) }
}

func WithClientLogger(l *applogger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.l = l
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:       &http.Client{Timeout: 30 * time.Second},
		header:   make(http.Header),
		attempts: 1,
		backoff:  50 * time.Millisecond,
		l:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = c.once(ctx, method, target, body, out)
		if err == nil || ctx.Err() != nil {
			return err
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return err
		}
		if attempt == c.attempts {
			break
		}
		c.l.Warn("http call failed, retrying",
			applogger.String("method", method),
			applogger.String("url", target),
			applogger.Int("attempt", attempt),
			applogger.Error(err),
		)
		select {
		case <-time.After(time.Duration(attempt) * c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *Client) once(ctx context.Context, method, target string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	rd, err := decodedBody(resp)
	if err != nil {
		return err
	}
	defer rd.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(rd, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(rd).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		return zr.IOReadCloser(), nil
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return gr, nil
	default:
		return resp.Body, nil
	}
}
