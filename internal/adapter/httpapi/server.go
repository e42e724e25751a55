// Package httpapi serves the /auth endpoints over gin.
//
// Every handler returns an error instead of writing failures itself. The
// error boundary runs the handler through apperr.Handler, whose notifiers
// are keyed by code and write the JSON error envelope with a message
// translated for the request's Accept-Language.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"authflow/internal/apperr"
	"authflow/internal/auth"
	"authflow/internal/i18n"
	"authflow/internal/metrics"
	"authflow/internal/ratelimit"
)

// Service is the account API the server exposes.
type Service interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (auth.TokenResponse, error)
	ValidateSignUp(ctx context.Context, req auth.SignUpRequest) (auth.TokenResponse, error)
	SignIn(ctx context.Context, req auth.SignInRequest) (auth.TokenResponse, error)
	Social(ctx context.Context, req auth.SocialRequest) (auth.TokenResponse, error)
	RequestPasswordReset(ctx context.Context, req auth.PasswordResetRequest) error
	ChangePassword(ctx context.Context, req auth.PasswordChangeRequest) error
	Ping(ctx context.Context) error
	Validator() *validator.Validate
}

// Server holds the HTTP layer dependencies.
type Server struct {
	svc      Service
	cat      *i18n.Catalog
	validate *validator.Validate
	errors   *apperr.Handler
	limiter  ratelimit.Limiter
	metrics  *metrics.Metrics
	log      *slog.Logger
	proxies  []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLimiter enables rate limiting on sign-in and password reset requests.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithTrustedProxies lists the proxy addresses or CIDRs whose
// X-Forwarded-For is believed. With none, the client IP is the socket peer.
func WithTrustedProxies(proxies []string) Option {
	return func(s *Server) { s.proxies = proxies }
}

// WithMetrics records request and error metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates the server and installs field translations on the service
// validator.
func New(svc Service, cat *i18n.Catalog, opts ...Option) (*Server, error) {
	s := &Server{svc: svc, cat: cat, validate: svc.Validator(), log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if err := cat.RegisterValidation(s.validate, auth.TagCodes()); err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	if err := gin.New().SetTrustedProxies(s.proxies); err != nil {
		return nil, fmt.Errorf("httpapi: trusted proxies: %w", err)
	}

	hopts := []apperr.HandlerOption{apperr.WithLogger(s.log)}
	if s.metrics != nil {
		hopts = append(hopts, apperr.WithObserver(s.metrics.Observer()))
	}
	s.errors = apperr.NewHandler(s.router(), hopts...)
	return s, nil
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	_ = r.SetTrustedProxies(s.proxies) // checked in New
	r.Use(gin.Recovery(), s.requestLog())

	a := r.Group("/auth")
	a.POST("/sign-up", s.boundary(s.signUp))
	a.POST("/sign-up/validate", s.boundary(s.validateSignUp))
	a.POST("/sign-in", s.rateLimit(), s.boundary(s.signIn))
	a.POST("/social", s.boundary(s.social))
	a.POST("/password/request", s.rateLimit(), s.boundary(s.requestPassword))
	a.POST("/password/change", s.boundary(s.changePassword))

	r.GET("/healthz", s.boundary(s.health))
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

type ginKey struct{}

func requestContext(c *gin.Context) context.Context {
	return context.WithValue(c.Request.Context(), ginKey{}, c)
}

// boundary runs fn through the error handler. Failures stop here.
func (s *Server) boundary(fn func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = s.errors.Handle(requestContext(c), func(context.Context) error {
			return fn(c)
		}, apperr.HandleOptions{Rethrow: false})
	}
}
