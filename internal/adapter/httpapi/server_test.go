package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authflow/internal/adapter/httpapi"
	"authflow/internal/adapter/storage/sqlitestore"
	"authflow/internal/apperr"
	"authflow/internal/auth"
	"authflow/internal/i18n"
	"authflow/internal/metrics"
	"authflow/internal/platform/logger"
	"authflow/internal/platform/sqlite"
	"authflow/internal/ratelimit"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type env struct {
	h       http.Handler
	svc     *auth.Service
	metrics *metrics.Metrics
	mail    chan string
}

func newEnv(t *testing.T, opts ...httpapi.Option) *env {
	t.Helper()
	db := sqlite.NewTestDB(t, nil, "")
	_, err := sqlitestore.Migrate(db)
	require.NoError(t, err)

	e := &env{metrics: metrics.New(), mail: make(chan string, 4)}
	mailer := auth.MailerFunc(func(_ context.Context, _ auth.User, token string, _ time.Time) error {
		e.mail <- token
		return nil
	})
	e.svc = auth.NewService(sqlitestore.New(db), auth.Config{BcryptCost: bcrypt.MinCost},
		auth.WithMailer(mailer), auth.WithLogger(logger.Discard()))

	cat, err := i18n.New("en")
	require.NoError(t, err)
	base := []httpapi.Option{httpapi.WithLogger(logger.Discard()), httpapi.WithMetrics(e.metrics)}
	srv, err := httpapi.New(e.svc, cat, append(base, opts...)...)
	require.NoError(t, err)
	e.h = srv.Handler()
	return e
}

func (e *env) do(t *testing.T, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperr.ErrorPayload {
	t.Helper()
	var body apperr.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

var signUpBody = map[string]string{"name": "Foo", "surname": "Bar", "email": "foo@mrmilu.com", "password": "Passw0rd"}

func TestSignUpAndSignIn(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "/auth/sign-up", signUpBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok auth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.Token)

	rec = e.do(t, "/auth/sign-in", map[string]string{"email": "foo@mrmilu.com", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "/auth/sign-in", map[string]string{"email": "foo@mrmilu.com", "password": "Wr0ngPass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	p := decodeError(t, rec)
	assert.Equal(t, apperr.CodeInvalidCredentials, p.Code)
	assert.Equal(t, "The email or password is incorrect.", p.Message)

	rec = e.do(t, "/auth/sign-up", signUpBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	p = decodeError(t, rec)
	assert.Equal(t, apperr.CodeEmailTaken, p.Code)
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "email", p.Fields[0].Property)
	assert.Equal(t, "An account with this email already exists.", p.Fields[0].Message)
}

func TestSignUp_WeakPasswordTranslated(t *testing.T) {
	e := newEnv(t)
	body := map[string]string{"name": "Foo", "surname": "Bar", "email": "foo@mrmilu.com", "password": "short"}

	rec := e.do(t, "/auth/sign-up", body, "Accept-Language", "es-ES,es;q=0.9")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "es", rec.Header().Get("Content-Language"))
	p := decodeError(t, rec)
	assert.Equal(t, apperr.CodeInvalidPassword, p.Code)
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "password", p.Fields[0].Property)
	assert.Equal(t, p.Message, p.Fields[0].Message)
	assert.NotContains(t, rec.Body.String(), "short", "password is never echoed")
}

func TestSignUp_ValidationFields(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "/auth/sign-up/validate", map[string]string{"name": "Foo", "email": "nope", "password": "Passw0rd"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeError(t, rec)
	assert.Equal(t, apperr.CodeValidation, p.Code)

	props := map[string]string{}
	for _, f := range p.Fields {
		props[f.Property] = f.Message
	}
	assert.Equal(t, "surname is a required field", props["surname"])
	assert.Equal(t, "email must be a valid email address", props["email"])
}

func TestMalformedBody(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "/auth/sign-in", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeValidation, decodeError(t, rec).Code)
}

func TestValidateSignUp(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "/auth/sign-up/validate", signUpBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}

func TestSocial_Unavailable(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "/auth/social", map[string]string{"firebase_token": "abc"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, apperr.CodeSocialAuthUnavailable, decodeError(t, rec).Code)
}

func TestPasswordFlow(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, "/auth/sign-up", signUpBody).Code)

	rec := e.do(t, "/auth/password/request", map[string]string{"email": "foo@mrmilu.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	token := <-e.mail

	rec = e.do(t, "/auth/password/request", map[string]string{"email": "ghost@mrmilu.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, "/auth/password/change", map[string]string{"token": token, "password": "N3wPassword", "repeatPassword": "Other1Pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodePasswordsMismatch, decodeError(t, rec).Code)

	rec = e.do(t, "/auth/password/change", map[string]string{"token": token, "password": "N3wPassword", "repeatPassword": "N3wPassword"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(t, "/auth/password/change", map[string]string{"token": token, "password": "N3wPassword", "repeatPassword": "N3wPassword"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeInvalidResetToken, decodeError(t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, httpapi.WithLimiter(ratelimit.NewMemory(ratelimit.Config{Requests: 2, Window: time.Minute})))
	creds := map[string]string{"email": "foo@mrmilu.com", "password": "Passw0rd"}

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, e.do(t, "/auth/sign-in", creds).Code)
	}
	rec := e.do(t, "/auth/sign-in", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, apperr.CodeTooManyRequests, decodeError(t, rec).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RateLimited.WithLabelValues("/auth/sign-in")))

	assert.Equal(t, http.StatusOK, e.do(t, "/auth/sign-up", signUpBody).Code, "other routes are not limited")
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	e := newEnv(t, httpapi.WithLimiter(ratelimit.NewMemory(ratelimit.Config{Requests: 2, Window: time.Minute})))
	creds := map[string]string{"email": "foo@mrmilu.com", "password": "Passw0rd"}

	limited := 0
	for i := 0; i < 20; i++ {
		rec := e.do(t, "/auth/sign-in", creds, "X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 18, limited)
}

func TestRateLimit_TrustedProxyForwardsClientIP(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	e := newEnv(t,
		httpapi.WithTrustedProxies([]string{"192.0.2.0/24"}),
		httpapi.WithLimiter(ratelimit.NewMemory(ratelimit.Config{Requests: 1, Window: time.Minute})),
	)
	creds := map[string]string{"email": "foo@mrmilu.com", "password": "Passw0rd"}

	assert.Equal(t, http.StatusUnauthorized, e.do(t, "/auth/sign-in", creds, "X-Forwarded-For", "203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, e.do(t, "/auth/sign-in", creds, "X-Forwarded-For", "203.0.113.7").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, "/auth/sign-in", creds, "X-Forwarded-For", "203.0.113.8").Code)
}

func TestNew_RejectsBadTrustedProxy(t *testing.T) {
	base := newEnv(t)
	cat, err := i18n.New("en")
	require.NoError(t, err)

	_, err = httpapi.New(base.svc, cat, httpapi.WithTrustedProxies([]string{"not-an-ip"}))
	assert.Error(t, err)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	e := newEnv(t, httpapi.WithLimiter(brokenLimiter{}))

	rec := e.do(t, "/auth/password/request", map[string]string{"email": "foo@mrmilu.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type panicking struct{ httpapi.Service }

func (panicking) SignIn(context.Context, auth.SignInRequest) (auth.TokenResponse, error) {
	panic("boom")
}

func TestPanicBecomesGenericError(t *testing.T) {
	base := newEnv(t)
	cat, err := i18n.New("en")
	require.NoError(t, err)
	srv, err := httpapi.New(panicking{base.svc}, cat, httpapi.WithLogger(logger.Discard()), httpapi.WithMetrics(base.metrics))
	require.NoError(t, err)
	base.h = srv.Handler()

	rec := base.do(t, "/auth/sign-in", map[string]string{"email": "foo@mrmilu.com", "password": "Passw0rd"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	p := decodeError(t, rec)
	assert.Equal(t, apperr.CodeGeneric, p.Code)
	assert.Equal(t, "Something went wrong. Please try again.", p.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(base.metrics.FallbackTotal.WithLabelValues("GENERIC_ERROR")))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `authflow_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
