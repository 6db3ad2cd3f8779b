// Package metrics exposes prometheus collectors for the registration engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "festreg"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	receipts      *prometheus.CounterVec
	collected     prometheus.Counter
	requests      *prometheus.HistogramVec
}

// New registers the collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registrations written or removed, by operation.",
		}, []string{"op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Compensating rollbacks after a failed fan-out, by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Registration lifecycle transitions taken.",
		}, []string{"from", "to"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Receipt sends by relay status code.",
		}, []string{"status"}),
		collected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collected_rupees_total",
			Help:      "Amount settled through registrations and stall sales.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.registrations,
		m.rollbacks,
		m.transitions,
		m.receipts,
		m.collected,
		m.requests,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegistrationCreated counts a committed registration and its amount.
func (m *Metrics) RegistrationCreated(amount int) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues("create").Inc()
	if amount > 0 {
		m.collected.Add(float64(amount))
	}
}

// RegistrationDeleted counts a removed registration.
func (m *Metrics) RegistrationDeleted() {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues("delete").Inc()
}

// Rollback counts a compensating rollback; ok is false when it failed.
func (m *Metrics) Rollback(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.rollbacks.WithLabelValues(outcome).Inc()
}

// Transition counts a lifecycle state change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Receipt counts a relay response. Status 0 means the send failed outright.
func (m *Metrics) Receipt(status int) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ServiceSale adds a stall sale to the collected total.
func (m *Metrics) ServiceSale(amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.collected.Add(float64(amount))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
