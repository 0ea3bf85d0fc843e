// Package metrics exposes Prometheus counters for credential lifecycle outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the counters.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	login      *prometheus.CounterVec
	refresh    *prometheus.CounterVec
	activation *prometheus.CounterVec
	register   *prometheus.CounterVec
	rpc        *prometheus.CounterVec
}

// New registers the counters plus Go and process collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	newCounter := func(name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credential",
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(c)
		return c
	}
	m := &Metrics{
		registry:   reg,
		login:      newCounter("login_total", "Login attempts by outcome.", "outcome"),
		refresh:    newCounter("refresh_total", "Refresh attempts by outcome.", "outcome"),
		activation: newCounter("activation_total", "Activation confirmations by outcome.", "outcome"),
		register:   newCounter("register_total", "Registrations by outcome.", "outcome"),
		rpc:        newCounter("rpc_total", "gRPC calls by method and status code.", "method", "code"),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Login counts a login attempt.
func (m *Metrics) Login(outcome string) {
	if m != nil {
		m.login.WithLabelValues(outcome).Inc()
	}
}

// Refresh counts a refresh attempt.
func (m *Metrics) Refresh(outcome string) {
	if m != nil {
		m.refresh.WithLabelValues(outcome).Inc()
	}
}

// Activation counts an activation confirmation.
func (m *Metrics) Activation(outcome string) {
	if m != nil {
		m.activation.WithLabelValues(outcome).Inc()
	}
}

// Register counts a registration.
func (m *Metrics) Register(outcome string) {
	if m != nil {
		m.register.WithLabelValues(outcome).Inc()
	}
}

// RPC counts a finished gRPC call.
func (m *Metrics) RPC(method, code string) {
	if m != nil {
		m.rpc.WithLabelValues(method, code).Inc()
	}
}

// Registry returns the underlying registry, or nil for a nil *Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
