// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for bookshelf.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be built without instrumentation in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for bookshelf.
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestSize      prometheus.Histogram
	RequestsInFlight prometheus.Gauge

	// Pipeline metrics
	PipelineOutcomes *prometheus.CounterVec
	PipelineErrors   *prometheus.CounterVec

	// Auth metrics
	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	// User store metrics
	UserLookupDuration  *prometheus.HistogramVec
	UsersLoaded         *prometheus.GaugeVec
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// New creates a new Metrics instance registered with reg. A nil reg uses
// the default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "bookshelf"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_body_size_bytes",
				Help:      "Request body size in bytes",
				Buckets:   []float64{0, 100, 1000, 10000, 100000, 1000000, 10000000},
			},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being served",
			},
		),
		PipelineOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_outcomes_total",
				Help:      "Final pipeline state per request",
			},
			[]string{"state"},
		),
		PipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_errors_total",
				Help:      "Errors caught by the pipeline error boundary",
			},
			[]string{"kind"},
		),
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"result"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		UserLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "user_lookup_duration_seconds",
				Help:      "User lookup duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
			},
			[]string{"result"},
		),
		UsersLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "users_loaded",
				Help:      "Number of users currently known to the store",
			},
			[]string{"store"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"breaker"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"breaker"},
		),
	}
}

// ObserveRequest tracks a request lifecycle. f returns the matched route
// name and the response status.
func (m *Metrics) ObserveRequest(method string, f func() (route string, status int)) {
	if m == nil {
		f()
		return
	}

	m.RequestsInFlight.Inc()
	defer m.RequestsInFlight.Dec()

	start := time.Now()
	route, status := f()
	duration := time.Since(start).Seconds()

	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration)
}

// ObserveBody records the size of a fully read request body.
func (m *Metrics) ObserveBody(size int) {
	if m == nil {
		return
	}
	m.RequestSize.Observe(float64(size))
}

// Outcome records the state a request finished in.
func (m *Metrics) Outcome(state string) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(state).Inc()
}

// PipelineError records an error caught by the error boundary.
func (m *Metrics) PipelineError(kind string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(kind).Inc()
}

// AuthSucceeded records a successful authentication.
func (m *Metrics) AuthSucceeded() {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues("success").Inc()
}

// AuthFailed records a rejected or failed authentication.
func (m *Metrics) AuthFailed(reason string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues("failure").Inc()
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// ObserveLookup tracks a user lookup. f returns the lookup result label.
func (m *Metrics) ObserveLookup(f func() string) {
	if m == nil {
		f()
		return
	}
	start := time.Now()
	result := f()
	m.UserLookupDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// SetUsersLoaded records how many users a store holds.
func (m *Metrics) SetUsersLoaded(store string, n int) {
	if m == nil {
		return
	}
	m.UsersLoaded.WithLabelValues(store).Set(float64(n))
}

// BreakerStateChanged records a circuit breaker transition. state is the
// numeric value of the new state; open reports whether the breaker tripped.
func (m *Metrics) BreakerStateChanged(name string, state int, open bool) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	if open {
		m.CircuitBreakerTrips.WithLabelValues(name).Inc()
	}
}

func statusLabel(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
