// Package authclient is a typed client for the /auth endpoints.
//
// Passwords are checked locally before any request is sent. A non-2xx
// answer comes back as *httpclient.ResponseError, which apperr.Classify
// maps to a code through the status table.
package authclient

import (
	"context"
	"net/http"

	"authflow/internal/auth"
	"authflow/internal/platform/httpclient"
)

// Client calls the auth API.
type Client struct {
	http   *httpclient.Client
	locale string
}

// Option configures a Client.
type Option func(*Client)

// WithLocale sends Accept-Language with every request.
func WithLocale(locale string) Option {
	return func(c *Client) { c.locale = locale }
}

// New creates a client over hc, which must have a base URL.
func New(hc *httpclient.Client, opts ...Option) *Client {
	c := &Client{http: hc}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SignUp registers an account.
func (c *Client) SignUp(ctx context.Context, req auth.SignUpRequest) (auth.TokenResponse, error) {
	if err := auth.CheckPassword(req.Password); err != nil {
		return auth.TokenResponse{}, err
	}
	return c.token(ctx, "auth/sign-up", req)
}

// ValidateSignUp runs the sign-up checks without creating the account.
func (c *Client) ValidateSignUp(ctx context.Context, req auth.SignUpRequest) (auth.TokenResponse, error) {
	if err := auth.CheckPassword(req.Password); err != nil {
		return auth.TokenResponse{}, err
	}
	return c.token(ctx, "auth/sign-up/validate", req)
}

// SignIn exchanges credentials for a session token.
func (c *Client) SignIn(ctx context.Context, req auth.SignInRequest) (auth.TokenResponse, error) {
	return c.token(ctx, "auth/sign-in", req)
}

// Social exchanges a provider token for a session token.
func (c *Client) Social(ctx context.Context, req auth.SocialRequest) (auth.TokenResponse, error) {
	return c.token(ctx, "auth/social", req)
}

// RequestPasswordReset asks for a reset token to be mailed.
func (c *Client) RequestPasswordReset(ctx context.Context, req auth.PasswordResetRequest) error {
	return c.http.DoJSON(ctx, http.MethodPost, "auth/password/request", req, nil, c.opts()...)
}

// ChangePassword redeems a reset token.
func (c *Client) ChangePassword(ctx context.Context, req auth.PasswordChangeRequest) error {
	if err := auth.CheckPasswordChange(req.Password, req.RepeatPassword); err != nil {
		return err
	}
	return c.http.DoJSON(ctx, http.MethodPost, "auth/password/change", req, nil, c.opts()...)
}

func (c *Client) token(ctx context.Context, path string, in any) (auth.TokenResponse, error) {
	var out auth.TokenResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, path, in, &out, c.opts()...); err != nil {
		return auth.TokenResponse{}, err
	}
	return out, nil
}

func (c *Client) opts() []httpclient.RequestOption {
	if c.locale == "" {
		return nil
	}
	return []httpclient.RequestOption{httpclient.WithHeader("Accept-Language", c.locale)}
}
