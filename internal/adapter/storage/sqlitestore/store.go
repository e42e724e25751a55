// Package sqlitestore implements auth.Store on an embedded SQLite database.
// Timestamps are stored as UTC unix nanoseconds.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"authflow/internal/apperr"
	"authflow/internal/auth"
	"authflow/internal/platform/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is configured for the embedded schema.
func Migrator(db *sql.DB) sqlite.Migrator {
	return sqlite.Migrator{DB: db, FS: migrationsFS, Dir: "migrations"}
}

// Migrate applies the embedded schema to db.
func Migrate(db *sql.DB) (sqlite.MigrationInfo, error) {
	return Migrator(db).Up()
}

// Store is the SQLite auth.Store.
type Store struct {
	db *sql.DB
	tx *sqlite.TxRunner
}

var _ auth.Store = (*Store)(nil)

// New wraps an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, tx: sqlite.NewTxRunner(db)}
}

// WithinTx implements auth.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.WithinTx(ctx, fn)
}

func (s *Store) q(ctx context.Context) sqlite.Querier { return s.tx.GetQuerier(ctx) }

const userColumns = "id, name, surname, email, password_hash, created_at"

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.q(ctx).ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Surname, u.Email, u.PasswordHash, toNanos(u.CreatedAt))
	return writeErr(err, "create user")
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.userWhere(ctx, "email = ?", email)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (auth.User, error) {
	row := s.q(ctx).QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg)
	return scanUser(row)
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hash string) error {
	res, err := s.q(ctx).ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, userID)
	if err != nil {
		return writeErr(err, "update password")
	}
	return expectRow(res, "user")
}

func (s *Store) LinkIdentity(ctx context.Context, userID string, id auth.Identity) error {
	_, err := s.q(ctx).ExecContext(ctx,
		"INSERT INTO social_identities (provider, subject, user_id, email, created_at) VALUES (?, ?, ?, ?, ?)",
		id.Provider, id.Subject, userID, id.Email, time.Now().UTC().UnixNano())
	return writeErr(err, "link identity")
}

func (s *Store) UserByIdentity(ctx context.Context, provider, subject string) (auth.User, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT u.id, u.name, u.surname, u.email, u.password_hash, u.created_at
		FROM users u JOIN social_identities si ON si.user_id = u.id
		WHERE si.provider = ? AND si.subject = ?`, provider, subject)
	return scanUser(row)
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	var userID any
	if sess.UserID != "" {
		userID = sess.UserID
	}
	_, err := s.q(ctx).ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, purpose, subject, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		sess.Token, userID, string(sess.Purpose), sess.Subject, toNanos(sess.CreatedAt), toNanos(sess.ExpiresAt))
	return writeErr(err, "create session")
}

// SessionByToken returns a stored session.
func (s *Store) SessionByToken(ctx context.Context, token string) (auth.Session, error) {
	var (
		sess             auth.Session
		userID           sql.NullString
		purpose          string
		created, expires int64
	)
	err := s.q(ctx).QueryRowContext(ctx,
		"SELECT token, user_id, purpose, subject, created_at, expires_at FROM sessions WHERE token = ?", token).
		Scan(&sess.Token, &userID, &purpose, &sess.Subject, &created, &expires)
	if err != nil {
		return auth.Session{}, readErr(err, "session")
	}
	sess.UserID = userID.String
	sess.Purpose = auth.Purpose(purpose)
	sess.CreatedAt = fromNanos(created)
	sess.ExpiresAt = fromNanos(expires)
	return sess, nil
}

func (s *Store) RevokeSessions(ctx context.Context, userID string) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, writeErr(err, "revoke sessions")
	}
	return res.RowsAffected()
}

func (s *Store) CreateResetToken(ctx context.Context, t auth.ResetToken) error {
	_, err := s.q(ctx).ExecContext(ctx,
		"INSERT INTO reset_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		t.Token, t.UserID, toNanos(t.CreatedAt), toNanos(t.ExpiresAt))
	return writeErr(err, "create reset token")
}

func (s *Store) ResetTokenByValue(ctx context.Context, token string) (auth.ResetToken, error) {
	var (
		t                auth.ResetToken
		created, expires int64
		used             sql.NullInt64
	)
	err := s.q(ctx).QueryRowContext(ctx,
		"SELECT token, user_id, created_at, expires_at, used_at FROM reset_tokens WHERE token = ?", token).
		Scan(&t.Token, &t.UserID, &created, &expires, &used)
	if err != nil {
		return auth.ResetToken{}, readErr(err, "reset token")
	}
	t.CreatedAt = fromNanos(created)
	t.ExpiresAt = fromNanos(expires)
	if used.Valid {
		at := fromNanos(used.Int64)
		t.UsedAt = &at
	}
	return t, nil
}

func (s *Store) MarkResetTokenUsed(ctx context.Context, token string, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		"UPDATE reset_tokens SET used_at = ? WHERE token = ? AND used_at IS NULL", toNanos(at), token)
	if err != nil {
		return writeErr(err, "mark reset token used")
	}
	return expectRow(res, "reset token")
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (auth.PurgeResult, error) {
	var out auth.PurgeResult
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		n := toNanos(now)
		res, err := s.q(ctx).ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", n)
		if err != nil {
			return writeErr(err, "purge sessions")
		}
		if out.Sessions, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = s.q(ctx).ExecContext(ctx, "DELETE FROM reset_tokens WHERE expires_at <= ? OR used_at IS NOT NULL", n)
		if err != nil {
			return writeErr(err, "purge reset tokens")
		}
		out.ResetTokens, err = res.RowsAffected()
		return err
	})
	return out, err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.New(apperr.CodeServiceUnavailable, "sqlite ping", apperr.Internal(), apperr.WithCause(err))
	}
	return nil
}

func scanUser(row *sql.Row) (auth.User, error) {
	var (
		u       auth.User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &created); err != nil {
		return auth.User{}, readErr(err, "user")
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func readErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.CodeNotFound, what+" not found", apperr.Internal())
	}
	return apperr.Wrapf(err, "read %s", what)
}

func writeErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case sqlite.IsUniqueViolation(err):
		return apperr.New(apperr.CodeConflict, op+": duplicate key", apperr.Internal(), apperr.WithCause(err))
	default:
		return apperr.Wrap(err, op)
	}
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.CodeNotFound, what+" not found", apperr.Internal())
	}
	return nil
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
