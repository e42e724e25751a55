// Package httpclient is the outbound HTTP client: JSON helpers, request logs
// with secrets stripped from URLs, and bounded retries for requests that are
// safe to repeat.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"time"

	"authflow/internal/platform/logger"
	"authflow/pkg/retry"
)

// Client wraps http.Client. The zero value is not usable; call New.
type Client struct {
	hc         *stdhttp.Client
	log        *slog.Logger
	base       *url.URL
	baseErr    error
	userAgent  string
	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
	retryPOST  bool
	maxReplay  int64
	maxErrBody int64
}

type Option func(*Client)

// WithTimeout bounds a single attempt, not the whole retry run.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBaseURL sets the prefix DoJSON paths are joined to. A malformed URL
// is reported by the first DoJSON call.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		u, err := url.Parse(raw)
		if err == nil && !u.IsAbs() {
			err = errors.New("not absolute")
		}
		if err != nil {
			c.base, c.baseErr = nil, fmt.Errorf("http: invalid base URL %q: %w", raw, err)
			return
		}
		c.base, c.baseErr = u, nil
	}
}

// WithRetries allows n extra attempts, starting at backoff and doubling.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = max(n, 0)
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithUserAgent is sent unless the request sets its own.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithRetryNonIdempotent retries POST and PATCH even without an
// Idempotency-Key.
func WithRetryNonIdempotent(v bool) Option {
	return func(c *Client) { c.retryPOST = v }
}

// WithMaxReplayBodySize caps the body buffered for replays; 0 lifts the cap.
func WithMaxReplayBodySize(n int64) Option {
	return func(c *Client) { c.maxReplay = n }
}

func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	tr.ResponseHeaderTimeout = 10 * time.Second

	c := &Client{
		hc:         &stdhttp.Client{Timeout: 15 * time.Second, Transport: tr},
		log:        slog.Default(),
		backoff:    200 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		maxReplay:  1 << 20,
		maxErrBody: 64 << 10,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do sends req, retrying transport failures and retryable statuses when the
// method allows it. When attempts run out on a retryable status the last
// response is returned as is.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	if err := c.bufferBody(req); err != nil {
		return nil, err
	}
	attempts := 1
	if c.canRetry(req) {
		attempts += c.retries
	}

	var (
		resp *stdhttp.Response
		n    int
	)
	err := retry.Do(ctx, c.policy(req, attempts), func(ctx context.Context) error {
		n++
		r, err := c.send(ctx, req, n)
		if err != nil {
			return err
		}
		if n < attempts && retryableStatus(r.StatusCode) {
			return c.release(r)
		}
		resp = r
		return nil
	}, shouldRetry)

	var exceeded *retry.RetriesExceededError
	if errors.As(err, &exceeded) {
		err = exceeded.LastError
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req *stdhttp.Request, attempt int) (*stdhttp.Response, error) {
	r := req.Clone(ctx)
	if c.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", c.userAgent)
	}
	if r.GetBody != nil {
		body, err := r.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}

	attrs := []any{slog.String("method", r.Method), slog.String("url", redactURL(r.URL)), slog.Int("attempt", attempt)}
	start := time.Now()
	res, err := c.hc.Do(r)
	if err != nil {
		c.log.Warn("http request failed", append(attrs, logger.Error(err))...)
		return nil, err
	}
	c.log.Info("http request", append(attrs, slog.Int("status", res.StatusCode), slog.Duration("dur", time.Since(start)))...)
	return res, nil
}

// release frees a response that is about to be retried.
func (c *Client) release(r *stdhttp.Response) error {
	after := retryAfter(r.Header.Get("Retry-After"))
	drainAndClose(r.Body)
	if r.StatusCode == stdhttp.StatusMisdirectedRequest {
		c.hc.CloseIdleConnections()
	}
	return &statusRetry{status: r.StatusCode, after: after}
}

func (c *Client) policy(req *stdhttp.Request, attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: min(c.backoff, c.maxBackoff),
		MaxDelay:     c.maxBackoff,
		Jitter:       true,
		NextDelay: func(_ int, err error) (time.Duration, bool) {
			var sr *statusRetry
			if errors.As(err, &sr) {
				return sr.after, true
			}
			return 0, true
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.log.Warn("http request retry",
				slog.String("method", req.Method),
				slog.String("url", redactURL(req.URL)),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				logger.Error(err))
		},
	}
}

// redactURL hides the userinfo password and the values of query parameters
// whose names look like secrets.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	dirty := false
	for k := range q {
		if logger.SensitiveKey(k) {
			q.Set(k, "xxxxx")
			dirty = true
		}
	}
	if !dirty {
		return u.Redacted()
	}
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.Redacted()
}
