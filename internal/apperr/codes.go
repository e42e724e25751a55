package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a failure for programmatic branching and for looking up
// the user-facing translated message. Codes are drawn from a closed registry.
type Code string

const (
	// CodeGeneric is assigned to failures that carry no recognizable shape.
	CodeGeneric Code = "GENERIC_ERROR"
	// CodeGeneral is the fallback for transport statuses missing from the status table.
	CodeGeneral Code = "GENERAL_ERROR"

	// CodeUnauthorized indicates missing or invalid authentication.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden indicates the caller is authenticated but not allowed.
	CodeForbidden Code = "FORBIDDEN"
	// CodeNotFound indicates a referenced item does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict indicates the request conflicts with current state.
	CodeConflict Code = "CONFLICT"
	// CodeValidation indicates input failed validation.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeTooManyRequests indicates a rate limit was hit.
	CodeTooManyRequests Code = "TOO_MANY_REQUESTS"
	// CodeServiceUnavailable indicates a dependency is temporarily unavailable.
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"

	// CodeNetwork indicates a transport failure that produced no response.
	CodeNetwork Code = "NETWORK_ERROR"
	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"

	// CodeInvalidCredentials indicates an unknown email or wrong password.
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	// CodeEmailTaken indicates the email already belongs to an account.
	CodeEmailTaken Code = "EMAIL_ALREADY_REGISTERED"
	// CodeInvalidPassword indicates the password does not satisfy the password rule.
	CodeInvalidPassword Code = "INVALID_PASSWORD"
	// CodePasswordsMismatch indicates password and repeatPassword differ.
	CodePasswordsMismatch Code = "PASSWORDS_MISMATCH"
	// CodeInvalidResetToken indicates an unknown, used or expired reset token.
	CodeInvalidResetToken Code = "INVALID_RESET_TOKEN"
	// CodeSocialAuthFailed indicates the identity provider rejected the token.
	CodeSocialAuthFailed Code = "SOCIAL_AUTH_FAILED"
	// CodeSocialAuthUnavailable indicates social sign-in is not configured.
	CodeSocialAuthUnavailable Code = "SOCIAL_AUTH_UNAVAILABLE"
)

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }

// Registry is the set of codes an application may produce.
// It is immutable once built; reads need no synchronization.
type Registry struct {
	order []Code
	index map[Code]struct{}
}

// ErrDuplicateCode is returned by NewRegistry when a code appears twice.
var ErrDuplicateCode = errors.New("apperr: duplicate code")

// ErrEmptyCode is returned by NewRegistry for an empty code.
var ErrEmptyCode = errors.New("apperr: empty code")

// NewRegistry builds a registry. Codes keep the order they were given in.
func NewRegistry(codes ...Code) (*Registry, error) {
	r := &Registry{
		order: make([]Code, 0, len(codes)),
		index: make(map[Code]struct{}, len(codes)),
	}
	for _, c := range codes {
		if c == "" {
			return nil, ErrEmptyCode
		}
		if _, ok := r.index[c]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, c)
		}
		r.index[c] = struct{}{}
		r.order = append(r.order, c)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(codes ...Code) *Registry {
	r, err := NewRegistry(codes...)
	if err != nil {
		panic(err)
	}
	return r
}

// Has reports whether c is part of the registry.
func (r *Registry) Has(c Code) bool {
	_, ok := r.index[c]
	return ok
}

// Codes returns a copy of the registered codes in registration order.
func (r *Registry) Codes() []Code {
	out := make([]Code, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered codes.
func (r *Registry) Len() int { return len(r.order) }

var defaultRegistry = MustRegistry(
	CodeGeneric,
	CodeGeneral,
	CodeUnauthorized,
	CodeForbidden,
	CodeNotFound,
	CodeConflict,
	CodeValidation,
	CodeTooManyRequests,
	CodeServiceUnavailable,
	CodeNetwork,
	CodeTimeout,
	CodeInvalidCredentials,
	CodeEmailTaken,
	CodeInvalidPassword,
	CodePasswordsMismatch,
	CodeInvalidResetToken,
	CodeSocialAuthFailed,
	CodeSocialAuthUnavailable,
)

// Codes returns every code of the application registry.
func Codes() []Code { return defaultRegistry.Codes() }

// Registered reports whether c belongs to the application registry.
func Registered(c Code) bool { return defaultRegistry.Has(c) }
