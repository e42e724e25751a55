package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/apperr"
	"authflow/internal/auth"
)

func TestObserver_CountsThroughHandler(t *testing.T) {
	m := New()
	router := apperr.NewRouter(apperr.NotifierFunc(func(context.Context, apperr.Code) error { return nil })).
		Route(apperr.CodeInvalidCredentials, apperr.NotifierFunc(func(context.Context, apperr.Code) error { return nil }))
	h := apperr.NewHandler(router, apperr.WithObserver(m.Observer()))

	ctx := context.Background()
	fail := func(err error) func(context.Context) error {
		return func(context.Context) error { return err }
	}
	_ = h.Handle(ctx, fail(apperr.New(apperr.CodeInvalidCredentials, "bad", apperr.Internal())), apperr.HandleOptions{})
	_ = h.Handle(ctx, fail(apperr.New(apperr.CodeInvalidCredentials, "bad", apperr.Internal())), apperr.HandleOptions{})
	_ = h.Handle(ctx, fail(context.DeadlineExceeded), apperr.HandleOptions{})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("INVALID_CREDENTIALS", "internal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("TIMEOUT", "external")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackTotal.WithLabelValues("TIMEOUT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FallbackTotal.WithLabelValues("INVALID_CREDENTIALS")))
}

func TestObserveRequestAndPurge(t *testing.T) {
	m := New()
	m.ObserveRequest("POST", "/auth/sign-in", 401, 15*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)
	m.ObservePurge(auth.PurgeResult{Sessions: 3, ResetTokens: 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/auth/sign-in", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PurgedTotal.WithLabelValues("sessions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PurgedTotal.WithLabelValues("reset_tokens")))
}

func TestObserveJob(t *testing.T) {
	m := New()
	m.ObserveJob("purge-expired", 20*time.Millisecond, nil)
	m.ObserveJob("purge-expired", time.Millisecond, errors.New("db down"))
	m.ObserveJob("purge-expired", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("purge-expired", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("purge-expired", "error")))
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.RateLimited.WithLabelValues("/auth/sign-in").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `authflow_rate_limited_total{route="/auth/sign-in"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
