package auth

import (
	"context"
	"time"
)

// Store persists accounts and tokens. Lookups that find nothing return an
// apperr NOT_FOUND error; unique violations return CONFLICT.
type Store interface {
	// WithinTx runs fn in a transaction; store calls made with the ctx
	// passed to fn join it.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UpdatePassword(ctx context.Context, userID, hash string) error

	LinkIdentity(ctx context.Context, userID string, id Identity) error
	UserByIdentity(ctx context.Context, provider, subject string) (User, error)

	CreateSession(ctx context.Context, s Session) error
	RevokeSessions(ctx context.Context, userID string) (int64, error)

	CreateResetToken(ctx context.Context, t ResetToken) error
	ResetTokenByValue(ctx context.Context, token string) (ResetToken, error)
	MarkResetTokenUsed(ctx context.Context, token string, at time.Time) error

	PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error)
	Ping(ctx context.Context) error
}
