package auth

import (
	"context"
	"log/slog"
	"time"
)

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to User, token string, expires time.Time) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, to User, token string, expires time.Time) error

// SendPasswordReset implements Mailer.
func (f MailerFunc) SendPasswordReset(ctx context.Context, to User, token string, expires time.Time) error {
	return f(ctx, to, token, expires)
}

// LogMailer records reset requests in the log instead of sending mail.
// The token attribute is masked by the redacting log handler.
type LogMailer struct {
	Log *slog.Logger
}

// SendPasswordReset implements Mailer.
func (m LogMailer) SendPasswordReset(ctx context.Context, to User, token string, expires time.Time) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "password reset issued",
		slog.String("user_id", to.ID),
		slog.String("email", to.Email),
		slog.String("token", token),
		slog.Time("expires_at", expires))
	return nil
}
