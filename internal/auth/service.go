package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"authflow/internal/apperr"
	"authflow/internal/platform/logger"
)

// Config holds token lifetimes and hashing cost.
type Config struct {
	SessionTTL time.Duration
	SignupTTL  time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

// DefaultConfig returns the lifetimes used when none are configured.
func DefaultConfig() Config {
	return Config{
		SessionTTL: 24 * time.Hour,
		SignupTTL:  15 * time.Minute,
		ResetTTL:   time.Hour,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Service implements the account flows behind the /auth endpoints.
type Service struct {
	store    Store
	cfg      Config
	social   SocialVerifier
	mailer   Mailer
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
	newToken func() string

	// dummyHash keeps sign-in timing similar for unknown emails.
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithSocialVerifier sets the provider used by Social.
func WithSocialVerifier(v SocialVerifier) Option {
	return func(s *Service) {
		if v != nil {
			s.social = v
		}
	}
}

// WithMailer sets the reset token delivery.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithValidator overrides the request validator.
func WithValidator(v *validator.Validate) Option {
	return func(s *Service) {
		if v != nil {
			s.validate = v
		}
	}
}

// NewService creates the auth service.
func NewService(store Store, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.SignupTTL <= 0 {
		cfg.SignupTTL = def.SignupTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = def.ResetTTL
	}
	if cfg.BcryptCost < bcrypt.MinCost {
		cfg.BcryptCost = def.BcryptCost
	}
	s := &Service{
		store:    store,
		cfg:      cfg,
		social:   UnavailableVerifier{},
		log:      slog.Default(),
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.mailer == nil {
		s.mailer = LogMailer{Log: s.log}
	}
	if s.validate == nil {
		s.validate = NewValidator()
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-Passw0rd"), cfg.BcryptCost)
	return s
}

// Validator returns the validator requests are checked with.
func (s *Service) Validator() *validator.Validate { return s.validate }

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := Validate(s.validate, req, nil); err != nil {
		return TokenResponse{}, err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return TokenResponse{}, err
	}

	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	var token string
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailFree(ctx, u.Email); err != nil {
			return err
		}
		if err := s.store.CreateUser(ctx, u); err != nil {
			if apperr.HasCode(err, apperr.CodeConflict) {
				return emailTaken(err)
			}
			return err
		}
		token, err = s.issue(ctx, u.ID, u.Email, PurposeSession, s.cfg.SessionTTL)
		return err
	})
	if err != nil {
		return TokenResponse{}, err
	}
	s.log.InfoContext(ctx, "user signed up", slog.String("user_id", u.ID))
	return TokenResponse{Token: token}, nil
}

// ValidateSignUp runs every sign-up check without creating the account and
// returns a short-lived signup token.
func (s *Service) ValidateSignUp(ctx context.Context, req SignUpRequest) (TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := Validate(s.validate, req, nil); err != nil {
		return TokenResponse{}, err
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return TokenResponse{}, err
	}
	token, err := s.issue(ctx, "", req.Email, PurposeSignup, s.cfg.SignupTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{Token: token}, nil
}

// SignIn checks credentials and issues a session token.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := Validate(s.validate, req, nil); err != nil {
		return TokenResponse{}, err
	}

	u, err := s.store.UserByEmail(ctx, req.Email)
	switch {
	case apperr.HasCode(err, apperr.CodeNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return TokenResponse{}, invalidCredentials("unknown email")
	case err != nil:
		return TokenResponse{}, err
	}
	if u.PasswordHash == "" {
		return TokenResponse{}, invalidCredentials("account has no password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return TokenResponse{}, invalidCredentials("password mismatch")
	}

	token, err := s.issue(ctx, u.ID, u.Email, PurposeSession, s.cfg.SessionTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{Token: token}, nil
}

// Social signs in with a provider token, creating the account on first use.
func (s *Service) Social(ctx context.Context, req SocialRequest) (TokenResponse, error) {
	if err := Validate(s.validate, req, nil); err != nil {
		return TokenResponse{}, err
	}
	id, err := s.social.Verify(ctx, req.FirebaseToken)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return TokenResponse{}, err
		}
		return TokenResponse{}, apperr.New(apperr.CodeSocialAuthFailed, "verify social token", apperr.External(), apperr.WithCause(err))
	}
	if id.Provider == "" || id.Subject == "" {
		return TokenResponse{}, apperr.New(apperr.CodeSocialAuthFailed, "provider returned an incomplete identity", apperr.External())
	}
	id.Email = normalizeEmail(id.Email)

	var token string
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.socialUser(ctx, id)
		if err != nil {
			return err
		}
		token, err = s.issue(ctx, u.ID, u.Email, PurposeSession, s.cfg.SessionTTL)
		return err
	})
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{Token: token}, nil
}

func (s *Service) socialUser(ctx context.Context, id Identity) (User, error) {
	u, err := s.store.UserByIdentity(ctx, id.Provider, id.Subject)
	if err == nil {
		return u, nil
	}
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		return User{}, err
	}

	if id.Email != "" {
		u, err = s.store.UserByEmail(ctx, id.Email)
		switch {
		case err == nil:
			return u, s.store.LinkIdentity(ctx, u.ID, id)
		case !apperr.HasCode(err, apperr.CodeNotFound):
			return User{}, err
		}
	}

	u = User{
		ID:        uuid.NewString(),
		Name:      id.Name,
		Surname:   id.Surname,
		Email:     id.Email,
		CreatedAt: s.now().UTC(),
	}
	if u.Email == "" {
		u.Email = id.Provider + ":" + id.Subject
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.log.InfoContext(ctx, "user created from social identity", slog.String("user_id", u.ID), slog.String("provider", id.Provider))
	return u, s.store.LinkIdentity(ctx, u.ID, id)
}

// RequestPasswordReset issues a reset token for a known email. The outcome
// is the same for unknown emails so accounts cannot be probed.
func (s *Service) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := Validate(s.validate, req, nil); err != nil {
		return err
	}

	u, err := s.store.UserByEmail(ctx, req.Email)
	switch {
	case apperr.HasCode(err, apperr.CodeNotFound):
		s.log.DebugContext(ctx, "password reset for unknown email")
		return nil
	case err != nil:
		return err
	}

	now := s.now().UTC()
	t := ResetToken{
		Token:     s.newToken(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ResetTTL),
	}
	if err := s.store.CreateResetToken(ctx, t); err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, u, t.Token, t.ExpiresAt); err != nil {
		s.log.ErrorContext(ctx, "deliver password reset", slog.String("user_id", u.ID), logger.Error(err))
	}
	return nil
}

// ChangePassword redeems a reset token. On success every session of the
// user is revoked.
func (s *Service) ChangePassword(ctx context.Context, req PasswordChangeRequest) error {
	if err := CheckPasswordChange(req.Password, req.RepeatPassword); err != nil {
		return err
	}
	if err := Validate(s.validate, req, nil); err != nil {
		return err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.store.ResetTokenByValue(ctx, req.Token)
		switch {
		case apperr.HasCode(err, apperr.CodeNotFound):
			return apperr.New(apperr.CodeInvalidResetToken, "unknown reset token", apperr.Internal())
		case err != nil:
			return err
		}
		if !t.Usable(now) {
			return apperr.New(apperr.CodeInvalidResetToken, "reset token used or expired", apperr.Internal())
		}
		if err := s.store.UpdatePassword(ctx, t.UserID, hash); err != nil {
			return err
		}
		if err := s.store.MarkResetTokenUsed(ctx, t.Token, now); err != nil {
			return err
		}
		revoked, err := s.store.RevokeSessions(ctx, t.UserID)
		if err != nil {
			return err
		}
		s.log.InfoContext(ctx, "password changed", slog.String("user_id", t.UserID), slog.Int64("sessions_revoked", revoked))
		return nil
	})
}

// PurgeExpired removes expired sessions and reset tokens.
func (s *Service) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	res, err := s.store.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return PurgeResult{}, err
	}
	if res.Sessions > 0 || res.ResetTokens > 0 {
		s.log.InfoContext(ctx, "expired tokens purged", slog.Int64("sessions", res.Sessions), slog.Int64("reset_tokens", res.ResetTokens))
	}
	return res, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

func (s *Service) hashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.cfg.BcryptCost)
	switch {
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return "", apperr.New(apperr.CodeInvalidPassword, "password longer than 72 bytes", apperr.Internal(), apperr.WithCause(err))
	case err != nil:
		return "", apperr.New(apperr.CodeGeneric, "hash password", apperr.Internal(), apperr.WithCause(err))
	}
	return string(hash), nil
}

func (s *Service) issue(ctx context.Context, userID, subject string, p Purpose, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	sess := Session{
		Token:     s.newToken(),
		UserID:    userID,
		Purpose:   p,
		Subject:   subject,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.store.UserByEmail(ctx, email)
	switch {
	case err == nil:
		return emailTaken(nil)
	case apperr.HasCode(err, apperr.CodeNotFound):
		return nil
	default:
		return err
	}
}

func emailTaken(cause error) error {
	opts := []apperr.Option{apperr.Internal(),
		apperr.WithData(&apperr.ValidationDetail{Fields: []apperr.FieldViolation{{Property: "email", Expected: "unique"}}})}
	if cause != nil {
		opts = append(opts, apperr.WithCause(cause))
	}
	return apperr.New(apperr.CodeEmailTaken, "email already registered", opts...)
}

func invalidCredentials(reason string) error {
	return apperr.New(apperr.CodeInvalidCredentials, reason, apperr.Internal())
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

