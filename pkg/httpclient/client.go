package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Config controls outbound request behavior.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	UserAgent   string
	MaxBodySize int64
}

func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		MaxRetries:  3,
		UserAgent:   "payflow/1.0",
		MaxBodySize: 4 << 20,
	}
}

// Client wraps http.Client with bounded exponential-backoff retries for
// transient failures. Non-2xx responses below 500 are returned as-is and
// never retried.
type Client struct {
	http *http.Client
	cfg  Config
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 4 << 20
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  log.Named("httpclient"),
	}
}

// Response is the drained outcome of a request.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// PostForm sends application/x-www-form-urlencoded values.
func (c *Client) PostForm(ctx context.Context, endpoint string, values url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, "application/x-www-form-urlencoded", []byte(values.Encode()))
}

// PostXML sends an XML payload.
func (c *Client) PostXML(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, "text/xml; charset=utf-8", body)
}

// PostJSON sends a JSON payload.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, "application/json", body)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, http.MethodGet, endpoint, "", nil)
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body []byte) (*Response, error) {
	var resp *Response

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)), ctx)

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		start := time.Now()
		res, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("outbound request failed",
				zap.String("method", method),
				zap.String("endpoint", sanitizeURL(endpoint)),
				zap.Error(err),
			)
			return err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, c.cfg.MaxBodySize))
		if err != nil {
			return err
		}

		c.log.Debug("outbound request",
			zap.String("method", method),
			zap.String("endpoint", sanitizeURL(endpoint)),
			zap.Int("status", res.StatusCode),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)

		if res.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream status %d", res.StatusCode)
		}

		resp = &Response{StatusCode: res.StatusCode, Body: data, Header: res.Header}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

var sensitiveParams = []string{"key", "sign", "api_key", "private_key", "password", "secret", "token"}

// sanitizeURL masks credential-bearing query parameters before logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		for _, s := range sensitiveParams {
			if strings.Contains(lower, s) {
				q.Set(param, "***")
				break
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
