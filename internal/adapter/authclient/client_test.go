package authclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authflow/internal/adapter/authclient"
	"authflow/internal/adapter/httpapi"
	"authflow/internal/adapter/storage/sqlitestore"
	"authflow/internal/apperr"
	"authflow/internal/auth"
	"authflow/internal/i18n"
	"authflow/internal/platform/httpclient"
	"authflow/internal/platform/logger"
	"authflow/internal/platform/sqlite"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := sqlite.NewTestDB(t, nil, "")
	_, err := sqlitestore.Migrate(db)
	require.NoError(t, err)

	svc := auth.NewService(sqlitestore.New(db), auth.Config{BcryptCost: bcrypt.MinCost}, auth.WithLogger(logger.Discard()))
	cat, err := i18n.New("en")
	require.NoError(t, err)
	srv, err := httpapi.New(svc, cat, httpapi.WithLogger(logger.Discard()))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(url string) *authclient.Client {
	hc := httpclient.New(httpclient.WithBaseURL(url), httpclient.WithLogger(logger.Discard()), httpclient.WithRetries(0, 0))
	return authclient.New(hc, authclient.WithLocale("en"))
}

var foo = auth.SignUpRequest{Name: "Foo", Surname: "Bar", Email: "foo@mrmilu.com", Password: "Passw0rd"}

func TestClient_EndToEnd(t *testing.T) {
	c := newClient(newServer(t).URL)
	ctx := context.Background()

	resp, err := c.ValidateSignUp(ctx, foo)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	resp, err = c.SignUp(ctx, foo)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = c.SignIn(ctx, auth.SignInRequest{Email: "foo@mrmilu.com", Password: "Passw0rd"})
	require.NoError(t, err)

	_, err = c.SignIn(ctx, auth.SignInRequest{Email: "foo@mrmilu.com", Password: "Wr0ngPass"})
	e := apperr.Classify(err)
	assert.Equal(t, apperr.CodeUnauthorized, e.Code())
	assert.Equal(t, apperr.KindExternal, e.Kind())

	_, err = c.SignUp(ctx, foo)
	e = apperr.Classify(err)
	assert.Equal(t, apperr.CodeConflict, e.Code())
	d, ok := e.Data().(*apperr.ValidationDetail)
	require.True(t, ok)
	_, ok = d.Field("email")
	assert.True(t, ok)

	require.NoError(t, c.RequestPasswordReset(ctx, auth.PasswordResetRequest{Email: "foo@mrmilu.com"}))

	err = c.ChangePassword(ctx, auth.PasswordChangeRequest{Token: "bogus", Password: "N3wPassword", RepeatPassword: "N3wPassword"})
	assert.Equal(t, apperr.CodeValidation, apperr.Classify(err).Code(), "400 maps to VALIDATION_ERROR")

	_, err = c.Social(ctx, auth.SocialRequest{FirebaseToken: "t"})
	assert.Equal(t, apperr.CodeServiceUnavailable, apperr.Classify(err).Code())
}

func TestClient_WeakPasswordNeverSent(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	c := newClient(ts.URL)
	ctx := context.Background()

	weak := foo
	weak.Password = "short"
	_, err := c.SignUp(ctx, weak)
	assert.Equal(t, apperr.CodeInvalidPassword, apperr.CodeOf(err))
	_, err = c.ValidateSignUp(ctx, weak)
	assert.Equal(t, apperr.CodeInvalidPassword, apperr.CodeOf(err))

	err = c.ChangePassword(ctx, auth.PasswordChangeRequest{Token: "t", Password: "Passw0rd", RepeatPassword: "Passw0rd1"})
	assert.Equal(t, apperr.CodePasswordsMismatch, apperr.CodeOf(err))

	assert.Zero(t, hits.Load())
}

func TestClient_SendsLocale(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Accept-Language")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	hc := httpclient.New(httpclient.WithBaseURL(ts.URL), httpclient.WithLogger(logger.Discard()))
	c := authclient.New(hc, authclient.WithLocale("es"))
	require.NoError(t, c.RequestPasswordReset(context.Background(), auth.PasswordResetRequest{Email: "a@b.co"}))
	assert.Equal(t, "es", got)
}
