// Package metrics exposes Prometheus collectors for the auth service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authflow/internal/apperr"
	"authflow/internal/auth"
)

// Metrics holds every collector. Each instance owns its registry.
type Metrics struct {
	reg *prometheus.Registry

	// ErrorsTotal counts handled failures per code and kind
	ErrorsTotal *prometheus.CounterVec
	// FallbackTotal counts failures that had no dedicated notifier
	FallbackTotal *prometheus.CounterVec
	// HTTPRequests counts served requests
	HTTPRequests *prometheus.CounterVec
	// HTTPLatency tracks request latency
	HTTPLatency *prometheus.HistogramVec
	// RateLimited counts rejected requests per route
	RateLimited *prometheus.CounterVec
	// PurgedTotal counts expired rows removed by the purge job
	PurgedTotal *prometheus.CounterVec
	// JobRuns counts background job runs per result
	JobRuns *prometheus.CounterVec
	// JobDuration tracks background job run time
	JobDuration *prometheus.HistogramVec
}

// New registers the collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflow_errors_total",
				Help: "Total number of handled failures",
			},
			[]string{"code", "kind"},
		),
		FallbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflow_fallback_notifications_total",
				Help: "Failures routed to the generic notifier",
			},
			[]string{"code"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authflow_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflow_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		PurgedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflow_purged_total",
				Help: "Expired rows removed by the purge job",
			},
			[]string{"table"},
		),
		JobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflow_job_runs_total",
				Help: "Background job runs",
			},
			[]string{"job", "result"},
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authflow_job_duration_seconds",
				Help:    "Background job run time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}
}

// Observer returns an apperr observer feeding the error counters.
func (m *Metrics) Observer() apperr.Observer {
	return func(e *apperr.Error, fallback bool) {
		m.ErrorsTotal.WithLabelValues(string(e.Code()), e.Kind().String()).Inc()
		if fallback {
			m.FallbackTotal.WithLabelValues(string(e.Code())).Inc()
		}
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePurge records a purge run.
func (m *Metrics) ObservePurge(res auth.PurgeResult) {
	m.PurgedTotal.WithLabelValues("sessions").Add(float64(res.Sessions))
	m.PurgedTotal.WithLabelValues("reset_tokens").Add(float64(res.ResetTokens))
}

// ObserveJob records one background job run.
func (m *Metrics) ObserveJob(name string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(name, result).Inc()
	m.JobDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
