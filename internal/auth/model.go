package auth

import "time"

// Purpose tells what a session token may be used for.
type Purpose string

const (
	// PurposeSession is a regular signed-in session.
	PurposeSession Purpose = "session"
	// PurposeSignup is the short-lived token returned by sign-up validation.
	PurposeSignup Purpose = "signup"
)

// User is a registered account. PasswordHash is empty for accounts created
// through social sign-in.
type User struct {
	ID           string
	Name         string
	Surname      string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is an issued token.
type Session struct {
	Token     string
	UserID    string // empty for signup tokens
	Purpose   Purpose
	Subject   string // email the token was issued for
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ResetToken allows a single password change.
type ResetToken struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the token can still be redeemed at now.
func (t ResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// Identity is what a social provider vouches for.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Surname  string
}

// PurgeResult counts rows removed by PurgeExpired.
type PurgeResult struct {
	Sessions    int64
	ResetTokens int64
}
