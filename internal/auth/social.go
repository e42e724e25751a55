package auth

import (
	"context"

	"authflow/internal/apperr"
)

// SocialVerifier exchanges a provider token for a verified identity.
type SocialVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// VerifierFunc adapts a function to SocialVerifier.
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

// Verify implements SocialVerifier.
func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) { return f(ctx, token) }

// UnavailableVerifier is used when no provider is configured.
type UnavailableVerifier struct{}

// Verify always reports SOCIAL_AUTH_UNAVAILABLE.
func (UnavailableVerifier) Verify(context.Context, string) (Identity, error) {
	return Identity{}, apperr.New(apperr.CodeSocialAuthUnavailable, "no social identity provider configured", apperr.Internal())
}
