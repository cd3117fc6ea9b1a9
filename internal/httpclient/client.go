// Package httpclient is the single outbound path to the events backend: base URL resolution,
// credential injection from persisted storage, JSON encoding and error mapping.
// It never retries and never reshapes responses.
package httpclient

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

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/storage"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Client issues JSON requests against BaseURL.
type Client struct {
	base string
	hc   *http.Client
	log  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the whole-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.hc.Timeout = d } }

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithTransport replaces the underlying round tripper (credential injection stays on top).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.hc.Transport.(*authTransport).base = rt }
}

// New builds a client for baseURL that reads the credential from store on every request.
func New(baseURL string, store storage.Storage, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Transport: &authTransport{base: http.DefaultTransport, store: store},
		},
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string { return c.base }

// Get decodes the JSON body of GET path into out.
func (c *Client) Get(ctx context.Context, path string, q url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, q, nil, out)
}

// Post sends in as JSON and decodes the answer into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, in, out)
}

// Put sends in as JSON and decodes the answer into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, in, out)
}

// Delete returns the raw acknowledgement body, which may be empty.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.Raw(ctx, http.MethodDelete, path, nil, nil)
}

// Do performs a request and decodes a non-empty 2xx body into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	body, err := c.Raw(ctx, method, path, q, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// Raw performs a request and returns the 2xx body unchanged.
func (c *Client) Raw(ctx context.Context, method, path string, q url.Values, in any) ([]byte, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rid := uuid.Must(uuid.NewV4()).String()
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Info("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", rid),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, errs.ErrTransport, err)
	}
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", rid),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := &Error{Method: method, Path: path, Status: resp.StatusCode}
		var env struct {
			Detail json.RawMessage `json:"detail"`
		}
		if json.Unmarshal(b, &env) == nil {
			he.Detail = env.Detail
		}
		return nil, he
	}
	return b, nil
}
