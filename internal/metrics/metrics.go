// Package metrics exposes the atomic counters already held by the audit
// pipeline, engine bridge, and strategy framework through Prometheus.
//
// Metrics here are exposition only: the atomics in each subsystem remain
// the single source of truth; a scrape just samples them via GaugeFunc.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated Prometheus registry so VeloZ's metrics don't
// collide with the default global one when embedded in another process.
type Registry struct {
	reg *prometheus.Registry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// GaugeFunc registers a gauge sampled from fn on every scrape.
func (r *Registry) GaugeFunc(name, help string, labels prometheus.Labels, fn func() float64) {
	opts := prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: labels}
	g := prometheus.NewGaugeFunc(opts, fn)
	r.reg.MustRegister(g)
}

// Handler returns the http.Handler to mount at e.g. /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
