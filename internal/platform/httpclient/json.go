package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
)

// ResponseError is a non-2xx answer to DoJSON. It satisfies the status and
// body carrier interfaces apperr.Classify looks for.
type ResponseError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Status)
}

func (e *ResponseError) StatusCode() int { return e.Status }

// ResponseBody is truncated to the client's error body limit.
func (e *ResponseError) ResponseBody() []byte { return e.Body }

// RequestOption adjusts one DoJSON request.
type RequestOption func(*stdhttp.Request)

// WithHeader sets key unless value is empty.
func WithHeader(key, value string) RequestOption {
	return func(r *stdhttp.Request) {
		if value != "" {
			r.Header.Set(key, value)
		}
	}
}

// DoJSON sends in as JSON to path under the base URL and decodes a 2xx body
// into out. A nil out or a 204 skips decoding.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}
	body, err := encodeJSON(in)
	if err != nil {
		return err
	}
	req, err := stdhttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxErrBody))
		return &ResponseError{Method: method, URL: redactURL(req.URL), Status: resp.StatusCode, Body: raw}
	}
	if out == nil || resp.StatusCode == stdhttp.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func encodeJSON(in any) (io.Reader, error) {
	if in == nil {
		return nil, nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return bytes.NewReader(raw), nil
}

func (c *Client) resolve(path string) (string, error) {
	switch {
	case c.baseErr != nil:
		return "", c.baseErr
	case c.base != nil:
		return c.base.JoinPath(path).String(), nil
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("http: relative path %q without base URL", path)
	}
	return u.String(), nil
}
