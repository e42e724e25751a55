package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"
	"time"

	"authflow/pkg/retry"
)

// ErrReplayBodyTooLarge means the body cannot be buffered for a replay.
var ErrReplayBodyTooLarge = errors.New("http: body too large for replay")

// statusRetry carries a retryable status and its Retry-After hint.
type statusRetry struct {
	status int
	after  time.Duration
}

func (e *statusRetry) Error() string { return "retryable status " + strconv.Itoa(e.status) }

// canRetry: idempotent methods always, POST with an Idempotency-Key, anything
// when WithRetryNonIdempotent is on.
func (c *Client) canRetry(req *stdhttp.Request) bool {
	if c.retries == 0 {
		return false
	}
	switch req.Method {
	case stdhttp.MethodGet, stdhttp.MethodHead, stdhttp.MethodOptions,
		stdhttp.MethodTrace, stdhttp.MethodPut, stdhttp.MethodDelete:
		return true
	case stdhttp.MethodPost:
		return c.retryPOST || req.Header.Get("Idempotency-Key") != ""
	}
	return c.retryPOST
}

// bufferBody makes req.Body replayable through GetBody.
func (c *Client) bufferBody(req *stdhttp.Request) error {
	if req.Body == nil || req.Body == stdhttp.NoBody || req.GetBody != nil {
		return nil
	}
	defer req.Body.Close()

	var r io.Reader = req.Body
	if c.maxReplay > 0 {
		r = io.LimitReader(req.Body, c.maxReplay+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if c.maxReplay > 0 && int64(len(body)) > c.maxReplay {
		return ErrReplayBodyTooLarge
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(body))
	return nil
}

func retryableStatus(status int) bool {
	switch status {
	case stdhttp.StatusRequestTimeout, stdhttp.StatusMisdirectedRequest,
		stdhttp.StatusTooEarly, stdhttp.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

func shouldRetry(err error) bool {
	var sr *statusRetry
	switch {
	case errors.As(err, &sr):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return retry.DefaultRetryable(err)
}

// retryAfter reads delta-seconds or an HTTP date; anything else is zero.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if t, err := stdhttp.ParseTime(v); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}

func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}
