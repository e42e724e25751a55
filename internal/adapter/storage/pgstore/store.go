// Package pgstore implements auth.Store on PostgreSQL through pgxpool.
package pgstore

import (
	"context"
	"embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"authflow/internal/apperr"
	"authflow/internal/auth"
	"authflow/internal/platform/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is configured for the embedded schema.
func Migrator(pool *pgxpool.Pool) pg.Migrator {
	return pg.Migrator{Pool: pool, FS: migrationsFS, Dir: "migrations"}
}

// Migrate applies the embedded schema through pool.
func Migrate(pool *pgxpool.Pool) (pg.MigrationInfo, error) {
	return Migrator(pool).Up()
}

// Store is the PostgreSQL auth.Store.
type Store struct {
	pool *pgxpool.Pool
	tx   *pg.TxRunner
}

var _ auth.Store = (*Store)(nil)

// New wraps a connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, tx: pg.NewTxRunner(pool)}
}

// WithinTx implements auth.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.WithinTx(ctx, fn)
}

func (s *Store) q(ctx context.Context) pg.Querier { return s.tx.GetQuerier(ctx) }

const userColumns = "id, name, surname, email, password_hash, created_at"

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.q(ctx).Exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		u.ID, u.Name, u.Surname, u.Email, u.PasswordHash, u.CreatedAt.UTC())
	return writeErr(err, "create user")
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return scanUser(s.q(ctx).QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return scanUser(s.q(ctx).QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hash string) error {
	tag, err := s.q(ctx).Exec(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", hash, userID)
	if err != nil {
		return writeErr(err, "update password")
	}
	if tag.RowsAffected() == 0 {
		return notFound("user")
	}
	return nil
}

func (s *Store) LinkIdentity(ctx context.Context, userID string, id auth.Identity) error {
	_, err := s.q(ctx).Exec(ctx,
		"INSERT INTO social_identities (provider, subject, user_id, email) VALUES ($1, $2, $3, $4)",
		id.Provider, id.Subject, userID, id.Email)
	return writeErr(err, "link identity")
}

func (s *Store) UserByIdentity(ctx context.Context, provider, subject string) (auth.User, error) {
	return scanUser(s.q(ctx).QueryRow(ctx, `
		SELECT u.id, u.name, u.surname, u.email, u.password_hash, u.created_at
		FROM users u JOIN social_identities si ON si.user_id = u.id
		WHERE si.provider = $1 AND si.subject = $2`, provider, subject))
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	var userID *string
	if sess.UserID != "" {
		userID = &sess.UserID
	}
	_, err := s.q(ctx).Exec(ctx,
		"INSERT INTO sessions (token, user_id, purpose, subject, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)",
		sess.Token, userID, string(sess.Purpose), sess.Subject, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	return writeErr(err, "create session")
}

// SessionByToken returns a stored session.
func (s *Store) SessionByToken(ctx context.Context, token string) (auth.Session, error) {
	var (
		sess    auth.Session
		userID  *string
		purpose string
	)
	err := s.q(ctx).QueryRow(ctx,
		"SELECT token, user_id, purpose, subject, created_at, expires_at FROM sessions WHERE token = $1", token).
		Scan(&sess.Token, &userID, &purpose, &sess.Subject, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return auth.Session{}, readErr(err, "session")
	}
	if userID != nil {
		sess.UserID = *userID
	}
	sess.Purpose = auth.Purpose(purpose)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return sess, nil
}

func (s *Store) RevokeSessions(ctx context.Context, userID string) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx, "DELETE FROM sessions WHERE user_id = $1", userID)
	if err != nil {
		return 0, writeErr(err, "revoke sessions")
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CreateResetToken(ctx context.Context, t auth.ResetToken) error {
	_, err := s.q(ctx).Exec(ctx,
		"INSERT INTO reset_tokens (token, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)",
		t.Token, t.UserID, t.CreatedAt.UTC(), t.ExpiresAt.UTC())
	return writeErr(err, "create reset token")
}

func (s *Store) ResetTokenByValue(ctx context.Context, token string) (auth.ResetToken, error) {
	var t auth.ResetToken
	err := s.q(ctx).QueryRow(ctx,
		"SELECT token, user_id, created_at, expires_at, used_at FROM reset_tokens WHERE token = $1", token).
		Scan(&t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		return auth.ResetToken{}, readErr(err, "reset token")
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	if t.UsedAt != nil {
		at := t.UsedAt.UTC()
		t.UsedAt = &at
	}
	return t, nil
}

func (s *Store) MarkResetTokenUsed(ctx context.Context, token string, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx,
		"UPDATE reset_tokens SET used_at = $1 WHERE token = $2 AND used_at IS NULL", at.UTC(), token)
	if err != nil {
		return writeErr(err, "mark reset token used")
	}
	if tag.RowsAffected() == 0 {
		return notFound("reset token")
	}
	return nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (auth.PurgeResult, error) {
	var out auth.PurgeResult
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		tag, err := s.q(ctx).Exec(ctx, "DELETE FROM sessions WHERE expires_at <= $1", now.UTC())
		if err != nil {
			return writeErr(err, "purge sessions")
		}
		out.Sessions = tag.RowsAffected()
		tag, err = s.q(ctx).Exec(ctx, "DELETE FROM reset_tokens WHERE expires_at <= $1 OR used_at IS NOT NULL", now.UTC())
		if err != nil {
			return writeErr(err, "purge reset tokens")
		}
		out.ResetTokens = tag.RowsAffected()
		return nil
	})
	return out, err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := pg.HealthCheckPool(ctx, s.pool); err != nil {
		return apperr.New(apperr.CodeServiceUnavailable, "postgres health check", apperr.Internal(), apperr.WithCause(err))
	}
	return nil
}

// Stats exposes pool statistics.
func (s *Store) Stats() pg.DBStats { return pg.GetPoolStats(s.pool) }

// Collector publishes Stats to Prometheus.
func (s *Store) Collector() prometheus.Collector { return pg.NewStatsCollector(s.pool) }

func scanUser(row pgx.Row) (auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return auth.User{}, readErr(err, "user")
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func notFound(what string) error {
	return apperr.New(apperr.CodeNotFound, what+" not found", apperr.Internal())
}

func readErr(err error, what string) error {
	if pg.IsNoRows(err) {
		return notFound(what)
	}
	return apperr.Wrapf(err, "read %s", what)
}

func writeErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case pg.IsUniqueViolation(err):
		return apperr.New(apperr.CodeConflict, op+": duplicate key", apperr.Internal(), apperr.WithCause(err))
	default:
		return apperr.Wrap(err, op)
	}
}
